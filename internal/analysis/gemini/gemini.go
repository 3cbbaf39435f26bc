// Package gemini implements the analysis backend on the Gemini API. Each
// cycle uploads one WAV file per speaker to the file API and generates
// the report with Google Search grounding. Uploads are deleted afterwards.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/discursa/discursa/internal/analysis"
)

// Compile-time interface assertion.
var _ analysis.Invoker = (*Invoker)(nil)

const (
	// defaultModel is used when no model is configured.
	defaultModel = "gemini-2.0-flash"

	// Uploaded files sit in state processing until the backend has
	// ingested them and must not be attached to a prompt before that.
	uploadPollInterval = 2 * time.Second
	uploadPollAttempts = 30

	wavMIMEType = "audio/wav"
)

// Invoker talks to the Gemini API. Credentials travel in each request, so
// a single Invoker serves every guild.
type Invoker struct {
	model   string
	baseURL string
}

// Option is a functional option for Invoker.
type Option func(*Invoker)

// WithModel overrides the default Gemini model.
func WithModel(model string) Option {
	return func(g *Invoker) {
		if model != "" {
			g.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point
// at a local mock server.
func WithBaseURL(url string) Option {
	return func(g *Invoker) {
		g.baseURL = url
	}
}

// New constructs a new Gemini Invoker.
func New(opts ...Option) *Invoker {
	g := &Invoker{model: defaultModel}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Analyze implements analysis.Invoker.
func (g *Invoker) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	if req.Credential == "" {
		return "", analysis.ErrNoCredential
	}
	if len(req.Artifacts) == 0 {
		return "", fmt.Errorf("gemini: no artifacts to analyze: %w", analysis.ErrUploadFailed)
	}

	cfg := &genai.ClientConfig{
		APIKey:  req.Credential,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}

	// Everything that reached the file API gets deleted on the way out,
	// whether or not generation succeeded.
	var uploaded []*genai.File
	defer func() { g.deleteFiles(ctx, client, uploaded) }()

	parts := []*genai.Part{genai.NewPartFromText(analysis.PromptFor(req.Mode))}
	if cp := analysis.ContextPrompt(req.Context); cp != "" {
		parts = append(parts, genai.NewPartFromText(cp))
	}

	// Speakers whose upload fails are dropped from this cycle.
	attached := 0
	var lastErr error
	for _, id := range req.SpeakerOrder() {
		f, err := g.upload(ctx, client, req.Artifacts[id])
		if f != nil {
			uploaded = append(uploaded, f)
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			slog.Warn("gemini: skipping speaker after failed upload",
				"speaker", req.DisplayName(id), "error", err)
			lastErr = err
			continue
		}
		parts = append(parts,
			genai.NewPartFromText("Speaker: "+req.DisplayName(id)),
			genai.NewPartFromURI(f.URI, f.MIMEType),
		)
		attached++
	}
	if attached == 0 {
		return "", fmt.Errorf("gemini: all artifact uploads failed: %w", lastErr)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		},
	)
	if err != nil {
		if isRateLimited(err) {
			return "", fmt.Errorf("gemini: generate: %w: %w", analysis.ErrRateLimited, err)
		}
		return "", fmt.Errorf("gemini: generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// upload pushes one artifact to the file API and waits until the backend
// has ingested it. The returned file is non-nil whenever the initial
// upload went through, even if waiting failed; callers own its deletion.
func (g *Invoker) upload(ctx context.Context, client *genai.Client, path string) (*genai.File, error) {
	name := filepath.Base(path)

	f, err := client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: wavMIMEType})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("gemini: upload %s: %w: %w", name, analysis.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("gemini: upload %s: %w: %w", name, analysis.ErrUploadFailed, err)
	}

	for range uploadPollAttempts {
		if f.State != genai.FileStateProcessing {
			break
		}
		select {
		case <-ctx.Done():
			return f, ctx.Err()
		case <-time.After(uploadPollInterval):
		}
		got, err := client.Files.Get(ctx, f.Name, nil)
		if err != nil {
			if isRateLimited(err) {
				return f, fmt.Errorf("gemini: poll %s: %w: %w", name, analysis.ErrRateLimited, err)
			}
			return f, fmt.Errorf("gemini: poll %s: %w: %w", name, analysis.ErrUploadFailed, err)
		}
		f = got
	}
	if f.State != genai.FileStateActive {
		return f, fmt.Errorf("gemini: %s stuck in state %q: %w", name, f.State, analysis.ErrUploadFailed)
	}
	return f, nil
}

// deleteFiles removes uploaded artifacts from the file API, best effort.
// Runs detached from the request context so an aborted analysis still
// cleans up after itself.
func (g *Invoker) deleteFiles(ctx context.Context, client *genai.Client, files []*genai.File) {
	if len(files) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	for _, f := range files {
		if _, err := client.Files.Delete(ctx, f.Name, nil); err != nil {
			slog.Warn("gemini: failed to delete uploaded file", "file", f.Name, "error", err)
		}
	}
}

// isRateLimited reports whether err is a quota or rate limit rejection.
func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}
