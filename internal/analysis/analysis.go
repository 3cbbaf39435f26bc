// Package analysis defines the boundary between a capture session and the
// model backend that turns one cycle's voice artifacts into a report.
package analysis

import (
	"context"
	"errors"
	"slices"

	"github.com/discursa/discursa/internal/settings"
)

// Failure classes an Invoker may report. Callers inspect them with
// errors.Is to pick user-facing wording; any other error is a generic
// backend failure.
var (
	// ErrNoCredential means the guild has no API key configured.
	ErrNoCredential = errors.New("analysis: no credential configured")

	// ErrRateLimited means the backend rejected the request because of
	// quota or rate limits.
	ErrRateLimited = errors.New("analysis: rate limited")

	// ErrUploadFailed means one or more artifacts could not be delivered
	// to the backend.
	ErrUploadFailed = errors.New("analysis: artifact upload failed")
)

// Request carries everything one analysis cycle hands to the backend.
type Request struct {
	// Artifacts maps speaker IDs to WAV file paths, one file per speaker
	// covering the same time window.
	Artifacts map[string]string

	// Names maps speaker IDs to display names. Speakers without an entry
	// are referred to by their raw ID.
	Names map[string]string

	// Context is the tail of the previous report, empty on the first
	// cycle of a session.
	Context string

	// Mode selects the analysis style.
	Mode settings.Mode

	// Credential is the guild's API key for the backend.
	Credential string
}

// SpeakerOrder returns the request's speaker IDs sorted, giving backends
// a deterministic order to attach the recordings in.
func (r Request) SpeakerOrder() []string {
	ids := make([]string, 0, len(r.Artifacts))
	for id := range r.Artifacts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DisplayName returns the display name for a speaker, falling back to the
// raw ID.
func (r Request) DisplayName(id string) string {
	if name := r.Names[id]; name != "" {
		return name
	}
	return id
}

// Invoker produces a report from one cycle's artifacts.
type Invoker interface {
	// Analyze blocks until the backend produced a report or failed. The
	// returned error wraps one of the failure classes above where it
	// applies.
	Analyze(ctx context.Context, req Request) (string, error)
}
