package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/discursa/discursa/internal/analysis"
)

// writeWAV drops a fake artifact into dir and returns its path.
func writeWAV(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// TestNew_Defaults checks the default model.
func TestNew_Defaults(t *testing.T) {
	inv := New()
	if inv.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, inv.model)
	}
}

// TestNew_WithModel checks the model override and that an empty override
// keeps the default.
func TestNew_WithModel(t *testing.T) {
	inv := New(WithModel("gpt-4o-mini-audio-preview"))
	if inv.model != "gpt-4o-mini-audio-preview" {
		t.Errorf("expected override, got %q", inv.model)
	}

	inv = New(WithModel(""))
	if inv.model != defaultModel {
		t.Errorf("expected default for empty override, got %q", inv.model)
	}
}

// TestAnalyze_NoCredential checks that a missing API key is rejected
// before anything is sent anywhere.
func TestAnalyze_NoCredential(t *testing.T) {
	inv := New()
	_, err := inv.Analyze(context.Background(), analysis.Request{
		Artifacts: map[string]string{"100": "/tmp/a.wav"},
	})
	if !errors.Is(err, analysis.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

// TestAnalyze_NoArtifacts checks that an empty artifact set is rejected
// before any network call.
func TestAnalyze_NoArtifacts(t *testing.T) {
	inv := New()
	_, err := inv.Analyze(context.Background(), analysis.Request{Credential: "key"})
	if !errors.Is(err, analysis.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

// TestBuildMessages checks message layout, part interleaving and encoding.
func TestBuildMessages(t *testing.T) {
	dir := t.TempDir()
	aData := []byte("RIFF-alice")
	bData := []byte("RIFF-bob")

	req := analysis.Request{
		Artifacts: map[string]string{
			"200": writeWAV(t, dir, "b.wav", bData),
			"100": writeWAV(t, dir, "a.wav", aData),
		},
		Names: map[string]string{"100": "Alice", "200": "Bob"},
	}

	messages, err := buildMessages(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected system + audio messages, got %d", len(messages))
	}

	if messages[0].OfSystem == nil {
		t.Fatal("expected a system message first")
	}
	if got := messages[0].OfSystem.Content.OfString.Value; !strings.Contains(got, "debate analyst") {
		t.Error("expected instructions in the system message")
	}

	user := messages[1].OfUser
	if user == nil {
		t.Fatal("expected the audio user message last")
	}
	parts := user.Content.OfArrayOfContentParts
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}

	wantNames := []string{"Speaker: Alice", "Speaker: Bob"}
	wantData := [][]byte{aData, bData}
	for i := range wantNames {
		text := parts[2*i]
		if text.OfText == nil || text.OfText.Text != wantNames[i] {
			t.Errorf("part %d: expected text part %q", 2*i, wantNames[i])
		}
		audio := parts[2*i+1]
		if audio.OfInputAudio == nil {
			t.Fatalf("expected part %d to be input audio", 2*i+1)
		}
		if got := audio.OfInputAudio.InputAudio.Format; got != "wav" {
			t.Errorf("part %d: expected wav format, got %q", 2*i+1, got)
		}
		raw, err := base64.StdEncoding.DecodeString(audio.OfInputAudio.InputAudio.Data)
		if err != nil {
			t.Fatalf("part %d: invalid base64: %v", 2*i+1, err)
		}
		if string(raw) != string(wantData[i]) {
			t.Errorf("part %d: expected payload %q, got %q", 2*i+1, wantData[i], raw)
		}
	}
}

// TestBuildMessages_WithContext checks the context message placement.
func TestBuildMessages_WithContext(t *testing.T) {
	dir := t.TempDir()
	req := analysis.Request{
		Artifacts: map[string]string{"100": writeWAV(t, dir, "a.wav", []byte("RIFF"))},
		Context:   "they agreed to disagree",
	}

	messages, err := buildMessages(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected system + context + audio messages, got %d", len(messages))
	}
	ctxMsg := messages[1].OfUser
	if ctxMsg == nil {
		t.Fatal("expected the context as a user message")
	}
	if got := ctxMsg.Content.OfString.Value; !strings.Contains(got, "Previous context:") {
		t.Errorf("expected context framing, got %q", got)
	}
}

// TestBuildMessages_SkipsUnreadable checks that a missing artifact drops
// only its speaker.
func TestBuildMessages_SkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	req := analysis.Request{
		Artifacts: map[string]string{
			"100": writeWAV(t, dir, "a.wav", []byte("RIFF")),
			"200": filepath.Join(dir, "gone.wav"),
		},
		Names: map[string]string{"100": "Alice", "200": "Bob"},
	}

	messages, err := buildMessages(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := messages[len(messages)-1].OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 {
		t.Fatalf("expected only one speaker's parts, got %d", len(parts))
	}
	if parts[0].OfText == nil || parts[0].OfText.Text != "Speaker: Alice" {
		t.Error("expected the remaining speaker's text part first")
	}
}

// TestBuildMessages_AllUnreadable checks the upload failure class when no
// artifact can be read.
func TestBuildMessages_AllUnreadable(t *testing.T) {
	req := analysis.Request{
		Artifacts: map[string]string{
			"100": filepath.Join(t.TempDir(), "gone.wav"),
		},
	}

	_, err := buildMessages(req)
	if !errors.Is(err, analysis.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

// TestWrapAPIError checks the status code to sentinel mapping.
func TestWrapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"http 401", &oai.Error{StatusCode: http.StatusUnauthorized}, analysis.ErrNoCredential},
		{"http 403", &oai.Error{StatusCode: http.StatusForbidden}, analysis.ErrNoCredential},
		{"http 429", &oai.Error{StatusCode: http.StatusTooManyRequests}, analysis.ErrRateLimited},
		{"wrapped 429", fmt.Errorf("call: %w", &oai.Error{StatusCode: http.StatusTooManyRequests}), analysis.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapAPIError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("expected %v class, got %v", tt.want, got)
			}
		})
	}
}

// TestWrapAPIError_Generic checks that other failures keep their class.
func TestWrapAPIError_Generic(t *testing.T) {
	for _, err := range []error{
		errors.New("connection refused"),
		&oai.Error{StatusCode: http.StatusInternalServerError},
	} {
		got := wrapAPIError(err)
		if errors.Is(got, analysis.ErrNoCredential) || errors.Is(got, analysis.ErrRateLimited) {
			t.Errorf("expected no sentinel class for %v, got %v", err, got)
		}
		if !errors.Is(got, err) {
			t.Errorf("expected %v to stay wrapped, got %v", err, got)
		}
	}
}
