// Package audio defines the platform-agnostic voice capture contracts.
//
// A [Transport] joins a voice channel and yields a [CaptureHandle]. The
// handle demultiplexes the channel's audio into per-speaker PCM chunks and
// appends them to whichever [Sink] is attached, typically the accumulator of
// a running session. Platform adapters live in subpackages (e.g. discord).
package audio

import "context"

// PCM format delivered by capture handles. Discord voice carries Opus at
// 48kHz stereo; handles decode to this format before appending to the sink.
const (
	SampleRate = 48000
	Channels   = 2
)

// Sink receives decoded PCM chunks for individual speakers. Append must be
// safe for concurrent use and must not block beyond the time needed to
// buffer the chunk; capture loops call it inline on their receive path.
type Sink interface {
	// Append adds a chunk of interleaved little-endian 16-bit PCM
	// attributed to the given speaker.
	Append(speakerID string, pcm []byte)
}

// CaptureHandle is a live voice connection that can record into a [Sink].
//
// StartRecording attaches a sink and begins delivering per-speaker PCM to
// it. StopRecording detaches the sink; audio arriving while none is attached
// is discarded. Disconnect leaves the channel and releases all resources.
// StopRecording and Disconnect are idempotent.
type CaptureHandle interface {
	// IsConnected reports whether the underlying voice connection is alive.
	IsConnected() bool

	// IsRecording reports whether a sink is currently attached.
	IsRecording() bool

	// StartRecording attaches sink and starts delivery. It fails when a
	// sink is already attached.
	StartRecording(sink Sink) error

	// StopRecording detaches the current sink. Calling it with no sink
	// attached is a no-op.
	StopRecording() error

	// Disconnect leaves the voice channel and stops all delivery. The
	// handle is unusable afterwards.
	Disconnect() error
}

// Transport joins voice channels on a messaging platform.
type Transport interface {
	// Connect joins the given voice channel and returns a handle for it.
	// The caller owns the handle and must eventually call Disconnect.
	Connect(ctx context.Context, guildID, channelID string) (CaptureHandle, error)
}
