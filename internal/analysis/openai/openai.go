// Package openai implements the analysis backend on the OpenAI chat API.
// Artifacts travel inline as base64 WAV parts of the user message; there
// is no upload round trip.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/discursa/discursa/internal/analysis"
)

// Compile-time interface assertion.
var _ analysis.Invoker = (*Invoker)(nil)

// defaultModel is used when no model is configured. Audio input requires
// one of the audio-preview chat models.
const defaultModel = "gpt-4o-audio-preview"

// Invoker talks to the OpenAI chat completion API. Credentials travel in
// each request, so a single Invoker serves every guild.
type Invoker struct {
	model   string
	baseURL string
}

// Option is a functional option for Invoker.
type Option func(*Invoker)

// WithModel overrides the default OpenAI model.
func WithModel(model string) Option {
	return func(o *Invoker) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL overrides the default OpenAI API base URL. Used for
// OpenAI-compatible backends and in tests to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(o *Invoker) {
		o.baseURL = url
	}
}

// New constructs a new OpenAI Invoker.
func New(opts ...Option) *Invoker {
	inv := &Invoker{model: defaultModel}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Analyze implements analysis.Invoker.
func (o *Invoker) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	if req.Credential == "" {
		return "", analysis.ErrNoCredential
	}

	messages, err := buildMessages(req)
	if err != nil {
		return "", err
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(req.Credential)}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	client := oai.NewClient(reqOpts...)

	resp, err := client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: messages,
	})
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai: empty response")
	}
	return text, nil
}

// buildMessages assembles the conversation: the instructions as system
// message, the previous context as its own user message and one user
// message interleaving "Speaker: <name>" text parts with base64 WAV parts
// in speaker order. Unreadable artifacts drop their speaker.
func buildMessages(req analysis.Request) ([]oai.ChatCompletionMessageParamUnion, error) {
	if len(req.Artifacts) == 0 {
		return nil, fmt.Errorf("openai: no artifacts to analyze: %w", analysis.ErrUploadFailed)
	}

	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(analysis.PromptFor(req.Mode)),
	}
	if cp := analysis.ContextPrompt(req.Context); cp != "" {
		messages = append(messages, oai.UserMessage(cp))
	}

	var parts []oai.ChatCompletionContentPartUnionParam
	var lastErr error
	for _, id := range req.SpeakerOrder() {
		path := req.Artifacts[id]
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("openai: skipping unreadable artifact",
				"file", filepath.Base(path), "speaker", req.DisplayName(id), "error", err)
			lastErr = err
			continue
		}
		parts = append(parts,
			oai.ChatCompletionContentPartUnionParam{
				OfText: &oai.ChatCompletionContentPartTextParam{Text: "Speaker: " + req.DisplayName(id)},
			},
			oai.ChatCompletionContentPartUnionParam{
				OfInputAudio: &oai.ChatCompletionContentPartInputAudioParam{
					InputAudio: oai.ChatCompletionContentPartInputAudioInputAudioParam{
						Data:   base64.StdEncoding.EncodeToString(raw),
						Format: "wav",
					},
				},
			},
		)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("openai: no readable artifacts: %w: %w", analysis.ErrUploadFailed, lastErr)
	}

	user := oai.ChatCompletionUserMessageParam{
		Content: oai.ChatCompletionUserMessageParamContentUnion{
			OfArrayOfContentParts: parts,
		},
	}
	return append(messages, oai.ChatCompletionMessageParamUnion{OfUser: &user}), nil
}

// wrapAPIError folds API status codes into the analysis sentinels: a
// rejected key surfaces as a missing credential, 429 as a rate limit.
func wrapAPIError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("openai: chat completion: %w: %w", analysis.ErrNoCredential, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("openai: chat completion: %w: %w", analysis.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("openai: chat completion: %w", err)
}
