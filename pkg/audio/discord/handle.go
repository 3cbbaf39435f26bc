package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/discursa/discursa/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.CaptureHandle = (*Handle)(nil)

// Handle wraps a discordgo.VoiceConnection and adapts it to the
// [audio.CaptureHandle] interface. A single receive loop drains the
// connection's Opus stream for the lifetime of the handle, demuxes packets
// by SSRC, decodes them to PCM and appends the result to the attached sink.
// Speaking updates from the voice gateway provide the SSRC to user mapping;
// packets whose SSRC has not been announced yet are dropped.
//
// Handle is safe for concurrent use.
type Handle struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string

	mu       sync.Mutex
	sink     audio.Sink
	ssrcUser map[uint32]string // SSRC -> userID mapping

	done      chan struct{}
	recvDone  chan struct{}
	closeOnce sync.Once

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newHandle initialises a Handle for an already-joined voice channel and
// starts its receive loop.
func newHandle(vc *discordgo.VoiceConnection, guildID, channelID string) *Handle {
	h := &Handle{
		vc:           vc,
		guildID:      guildID,
		channelID:    channelID,
		ssrcUser:     make(map[uint32]string),
		done:         make(chan struct{}),
		recvDone:     make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// The voice gateway announces each speaker's SSRC before their first
	// packet; record the mapping so packets can be attributed.
	vc.AddHandler(h.handleSpeakingUpdate)

	go h.recvLoop()

	return h
}

// IsConnected reports whether the handle still holds its voice connection.
func (h *Handle) IsConnected() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// IsRecording reports whether a sink is currently attached.
func (h *Handle) IsRecording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink != nil
}

// StartRecording attaches sink and begins delivering decoded per-speaker PCM
// to it. It fails when a sink is already attached.
func (h *Handle) StartRecording(sink audio.Sink) error {
	if sink == nil {
		return fmt.Errorf("discord: start recording in guild %s: nil sink", h.guildID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sink != nil {
		return fmt.Errorf("discord: start recording in guild %s: already recording", h.guildID)
	}
	h.sink = sink
	return nil
}

// StopRecording detaches the current sink. Audio received while no sink is
// attached is discarded. Calling it with no sink attached is a no-op.
func (h *Handle) StopRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = nil
	return nil
}

// Disconnect detaches the sink, stops the receive loop and leaves the voice
// channel. It is safe to call more than once; subsequent calls return nil.
func (h *Handle) Disconnect() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.sink = nil
		h.mu.Unlock()

		close(h.done)
		// Wait for the receive loop so no Append can land after Disconnect
		// returns.
		<-h.recvDone

		if h.disconnectVC != nil {
			if derr := h.disconnectVC(); derr != nil {
				err = fmt.Errorf("discord: disconnect voice in guild %s: %w", h.guildID, derr)
			}
		}
	})
	return err
}

// handleSpeakingUpdate records the SSRC to user mapping announced by the
// voice gateway.
func (h *Handle) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ssrcUser[uint32(su.SSRC)] = su.UserID
}

// recvLoop reads Opus packets from the Discord voice connection until the
// handle is disconnected. It runs for the whole life of the handle so the
// transport never backs up, and only decodes while a sink is attached.
func (h *Handle) recvLoop() {
	defer close(h.recvDone)

	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-h.done:
			return
		case pkt, ok := <-h.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			h.mu.Lock()
			sink := h.sink
			userID := h.ssrcUser[pkt.SSRC]
			h.mu.Unlock()

			if sink == nil {
				continue
			}
			if userID == "" {
				// No speaking update seen for this SSRC yet, so the audio
				// cannot be attributed to a speaker.
				continue
			}

			// Lazily create a decoder for this SSRC.
			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			sink.Append(userID, pcm)
		}
	}
}
