// Package session owns the per-guild capture lifecycle: the state machine
// around one voice capture, the periodic analysis scheduler and the
// registry that keeps exactly one session per guild.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/discursa/discursa/internal/analysis"
	"github.com/discursa/discursa/internal/capture"
	"github.com/discursa/discursa/internal/observe"
	"github.com/discursa/discursa/internal/report"
	"github.com/discursa/discursa/internal/settings"
	"github.com/discursa/discursa/pkg/audio"
)

// State of a session.
type State string

const (
	// StateIdle means no capture is attached.
	StateIdle State = "idle"

	// StateCapturing means audio is being collected and the scheduler is
	// running.
	StateCapturing State = "capturing"

	// StateStopping means a stop is in progress; the state returns to
	// idle once teardown finished.
	StateStopping State = "stopping"
)

var (
	// ErrAlreadyCapturing is returned by Start when a capture is active.
	ErrAlreadyCapturing = errors.New("session: already capturing")

	// ErrNotCapturing is returned by operations that need an active
	// capture when there is none.
	ErrNotCapturing = errors.New("session: not capturing")
)

// Converter turns one flushed batch into per-speaker artifact files.
// Implemented by [artifact.Pipeline].
type Converter interface {
	// Convert returns the artifact path per succeeding speaker plus every
	// file it created, including files of speakers that failed later.
	Convert(ctx context.Context, batch map[string][]byte) (artifacts map[string]string, created []string, err error)

	// Cleanup removes created artifact files, best effort.
	Cleanup(paths []string)
}

// NameResolver maps speaker IDs to display names.
type NameResolver interface {
	DisplayName(ctx context.Context, guildID, userID string) (string, error)
}

// Config configures a [Session].
type Config struct {
	// GuildID identifies the guild the session belongs to.
	GuildID string

	// Store provides mode, interval and credential. The interval is
	// re-read before every scheduled cycle.
	Store settings.Store

	// Converter turns flushed audio into analysis artifacts.
	Converter Converter

	// Invoker produces the report for one cycle.
	Invoker analysis.Invoker

	// Resolver maps speaker IDs to display names. May be nil; speakers
	// then get synthetic User_<id> names.
	Resolver NameResolver

	// Metrics receives cycle instrumentation. May be nil.
	Metrics *observe.Metrics

	// Provider labels analysis latency metrics, e.g. "gemini".
	Provider string
}

// Session drives the capture and periodic analysis of one guild's voice
// channel. All cycles (scheduled tick, forced, stop-final) run serialized
// under one mutex, so a new cycle never starts while a previous one is
// still converting, analyzing or publishing.
//
// All methods are safe for concurrent use.
type Session struct {
	guildID   string
	store     settings.Store
	converter Converter
	invoker   analysis.Invoker
	resolver  NameResolver
	metrics   *observe.Metrics
	provider  string

	mu        sync.Mutex
	state     State
	handle    audio.CaptureHandle
	acc       *capture.Accumulator
	publisher report.Publisher
	context   string
	nextAt    time.Time

	// Scheduler plumbing, recreated on every Start.
	done     chan struct{}
	loopDone chan struct{}
	stopOnce *sync.Once
}

// NewSession creates an idle [Session] with the given configuration.
func NewSession(cfg Config) *Session {
	return &Session{
		guildID:   cfg.GuildID,
		store:     cfg.Store,
		converter: cfg.Converter,
		invoker:   cfg.Invoker,
		resolver:  cfg.Resolver,
		metrics:   cfg.Metrics,
		provider:  cfg.Provider,
		state:     StateIdle,
	}
}

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextAt returns the time of the next scheduled cycle. ok is false while
// no capture is active or the first wait has not been armed yet.
func (s *Session) NextAt() (at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing || s.nextAt.IsZero() {
		return time.Time{}, false
	}
	return s.nextAt, true
}

// Start attaches a capture handle, begins buffering audio and spawns the
// scheduler goroutine. ctx bounds the scheduler, so pass an
// application-lifetime context, not a request context.
//
// A failure to start recording tears the handle down again and leaves the
// session idle.
func (s *Session) Start(ctx context.Context, handle audio.CaptureHandle, publisher report.Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyCapturing
	}

	acc := capture.New()
	if err := handle.StartRecording(acc); err != nil {
		if derr := handle.Disconnect(); derr != nil {
			slog.Warn("session: failed to disconnect after start failure",
				"guild_id", s.guildID,
				"error", derr,
			)
		}
		return fmt.Errorf("session: start recording in guild %s: %w", s.guildID, err)
	}

	s.handle = handle
	s.acc = acc
	s.publisher = publisher
	s.context = ""
	s.nextAt = time.Time{}
	s.state = StateCapturing

	s.done = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.stopOnce = &sync.Once{}
	go s.loop(ctx, s.done, s.loopDone)

	s.metrics.SessionStarted(ctx)
	slog.Info("session: capture started", "guild_id", s.guildID)
	return nil
}

// ForceAnalysis runs one cycle immediately. The periodic timer keeps its
// phase; the next scheduled cycle fires when it would have anyway.
func (s *Session) ForceAnalysis(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing {
		return ErrNotCapturing
	}
	s.runCycle(ctx, triggerForce)
	return nil
}

// Stop cancels the scheduler, waits for any in-flight cycle to finish,
// runs one final cycle unless skipFinal, then tears down the capture
// handle and returns the session to idle. Concurrent callers beyond the
// first get [ErrNotCapturing].
func (s *Session) Stop(ctx context.Context, skipFinal bool) error {
	s.mu.Lock()
	if s.state != StateCapturing {
		s.mu.Unlock()
		return ErrNotCapturing
	}
	s.state = StateStopping
	done, loopDone, stopOnce := s.done, s.loopDone, s.stopOnce
	s.mu.Unlock()

	// No tick may start once cancellation was requested; an in-flight
	// cycle runs to completion before the loop exits.
	stopOnce.Do(func() { close(done) })
	<-loopDone

	s.mu.Lock()
	if !skipFinal {
		s.runCycle(ctx, triggerFinal)
	}
	handle := s.handle
	s.handle = nil
	s.acc = nil
	s.publisher = nil
	s.context = ""
	s.nextAt = time.Time{}
	s.state = StateIdle
	s.mu.Unlock()

	if handle != nil {
		if err := handle.StopRecording(); err != nil {
			slog.Warn("session: stop recording failed", "guild_id", s.guildID, "error", err)
		}
		if err := handle.Disconnect(); err != nil {
			slog.Warn("session: disconnect failed", "guild_id", s.guildID, "error", err)
		}
	}

	s.metrics.SessionStopped(ctx)
	slog.Info("session: capture stopped", "guild_id", s.guildID, "skip_final", skipFinal)
	return nil
}

// loop is the per-capture scheduler goroutine. It re-reads the interval
// before every wait, so interval changes apply to the next cycle, not the
// running wait.
func (s *Session) loop(ctx context.Context, done, loopDone chan struct{}) {
	defer close(loopDone)

	interval := settings.DefaultInterval
	for {
		if got, err := s.store.Get(ctx, s.guildID); err != nil {
			slog.Warn("session: failed to read settings, keeping previous interval",
				"guild_id", s.guildID,
				"error", err,
			)
		} else if got.Interval > 0 {
			interval = got.Interval
		}

		s.mu.Lock()
		s.nextAt = time.Now().Add(interval)
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-done:
			timer.Stop()
			return
		case <-timer.C:
		}

		// Re-check after the timer: a stop requested while the timer fired
		// must not start another cycle.
		select {
		case <-done:
			return
		default:
		}

		s.mu.Lock()
		s.runCycle(ctx, triggerTick)
		s.mu.Unlock()
	}
}
