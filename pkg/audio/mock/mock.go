// Package mock provides in-memory mock implementations of the [audio.Transport],
// [audio.CaptureHandle], and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	handle := &mock.Handle{}
//	transport := &mock.Transport{ConnectResult: handle}
//	got, err := transport.Connect(ctx, "guild-1", "channel-42")
package mock

import (
	"context"
	"sync"

	"github.com/discursa/discursa/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Transport     = (*Transport)(nil)
	_ audio.CaptureHandle = (*Handle)(nil)
	_ audio.Sink          = (*Sink)(nil)
)

// ─── Transport ────────────────────────────────────────────────────────────────

// Transport is a mock [audio.Transport].
type Transport struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect when ConnectErr is nil.
	ConnectResult audio.CaptureHandle
	// ConnectErr, when set, is returned by Connect instead of ConnectResult.
	ConnectErr error

	// ConnectCalls records the guild and channel IDs passed to Connect.
	ConnectCalls []ConnectCall
}

// ConnectCall records the arguments of one Transport.Connect invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

func (t *Transport) Connect(_ context.Context, guildID, channelID string) (audio.CaptureHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectCalls = append(t.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	return t.ConnectResult, nil
}

// Calls returns a snapshot of the recorded Connect calls.
func (t *Transport) Calls() []ConnectCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ConnectCall(nil), t.ConnectCalls...)
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock [audio.CaptureHandle]. The zero value reports connected
// and not recording.
type Handle struct {
	mu sync.Mutex

	// StartRecordingErr, when set, is returned by StartRecording.
	StartRecordingErr error
	// StopRecordingErr, when set, is returned by StopRecording.
	StopRecordingErr error
	// DisconnectErr, when set, is returned by Disconnect.
	DisconnectErr error

	// AttachedSink is the sink attached by the last successful StartRecording
	// and cleared by StopRecording and Disconnect.
	AttachedSink audio.Sink

	StartRecordingCalls int
	StopRecordingCalls  int
	DisconnectCalls     int

	disconnected bool
}

func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disconnected
}

func (h *Handle) IsRecording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.AttachedSink != nil
}

func (h *Handle) StartRecording(sink audio.Sink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StartRecordingCalls++
	if h.StartRecordingErr != nil {
		return h.StartRecordingErr
	}
	h.AttachedSink = sink
	return nil
}

func (h *Handle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.StopRecordingCalls++
	if h.StopRecordingErr != nil {
		return h.StopRecordingErr
	}
	h.AttachedSink = nil
	return nil
}

func (h *Handle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.DisconnectCalls++
	if h.DisconnectErr != nil {
		return h.DisconnectErr
	}
	h.disconnected = true
	h.AttachedSink = nil
	return nil
}

// Sink returns the currently attached sink, if any.
func (h *Handle) Sink() audio.Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.AttachedSink
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that records every appended chunk. The zero
// value is ready to use.
type Sink struct {
	mu sync.Mutex

	chunks map[string][][]byte
}

func (s *Sink) Append(speakerID string, pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = make(map[string][][]byte)
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.chunks[speakerID] = append(s.chunks[speakerID], buf)
}

// Chunks returns a snapshot of all recorded chunks keyed by speaker.
func (s *Sink) Chunks() map[string][][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string][][]byte, len(s.chunks))
	for id, cs := range s.chunks {
		snap[id] = append([][]byte(nil), cs...)
	}
	return snap
}
