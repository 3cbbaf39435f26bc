package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/discursa/discursa/internal/analysis"
	"github.com/discursa/discursa/internal/report"
	"github.com/discursa/discursa/internal/settings"
)

// trigger names the path that started a cycle.
type trigger string

const (
	triggerTick  trigger = "tick"
	triggerForce trigger = "force"
	triggerFinal trigger = "final"
)

// Cycle outcomes for metrics and logs.
const (
	outcomeReport       = "report"
	outcomeEmpty        = "empty"
	outcomeNoCredential = "no_credential"
	outcomeRateLimited  = "rate_limited"
	outcomeUploadFailed = "upload_failed"
	outcomeFailure      = "failure"
)

const (
	// contextLimit bounds the rolling context carried between cycles.
	contextLimit = 2000

	// errDetailLimit bounds the failure detail shown in notices.
	errDetailLimit = 200

	timeFormat = "2006-01-02 15:04"
)

// runCycle executes one analysis cycle and records its metrics. Must be
// called with s.mu held; callers hold the mutex for the whole cycle, which
// keeps cycles strictly sequential per session.
func (s *Session) runCycle(ctx context.Context, trig trigger) {
	if s.handle == nil || s.acc == nil {
		return
	}

	start := time.Now()
	outcome := s.cycle(ctx, trig == triggerFinal)
	elapsed := time.Since(start)

	s.metrics.RecordCycle(ctx, string(trig), outcome, elapsed)
	slog.Info("session: cycle finished",
		"guild_id", s.guildID,
		"trigger", string(trig),
		"outcome", outcome,
		"duration", elapsed,
	)
}

// cycle is the body of runCycle: flush, convert, analyze, publish. Every
// artifact created along the way is cleaned up on every exit path. Must be
// called with s.mu held.
func (s *Session) cycle(ctx context.Context, final bool) string {
	batch := s.acc.Flush()
	if len(batch) == 0 {
		if final {
			s.notify(ctx, "🔇 No audio was captured since the last analysis.")
		}
		return outcomeEmpty
	}

	var flushed int64
	for _, pcm := range batch {
		flushed += int64(len(pcm))
	}
	s.metrics.RecordFlush(ctx, flushed, len(batch))

	names := s.resolveNames(ctx, batch)

	cfg, err := s.store.Get(ctx, s.guildID)
	if err != nil {
		slog.Warn("session: failed to read settings, using defaults",
			"guild_id", s.guildID,
			"error", err,
		)
		cfg = settings.Defaults()
	}

	artifacts, created, err := s.converter.Convert(ctx, batch)
	defer s.converter.Cleanup(created)
	if err != nil {
		slog.Warn("session: artifact conversion aborted", "guild_id", s.guildID, "error", err)
		return outcomeFailure
	}
	if len(artifacts) == 0 {
		slog.Warn("session: no artifacts produced", "guild_id", s.guildID, "speakers", len(batch))
		return outcomeEmpty
	}

	analysisStart := time.Now()
	text, err := s.invoker.Analyze(ctx, analysis.Request{
		Artifacts:  artifacts,
		Names:      names,
		Context:    s.context,
		Mode:       cfg.Mode,
		Credential: cfg.Credential,
	})
	s.metrics.RecordAnalysis(ctx, s.provider, time.Since(analysisStart))
	if err != nil {
		return s.publishFailure(ctx, err)
	}

	s.context = report.Trailing(text, contextLimit)
	s.publishReport(ctx, text, final)
	return outcomeReport
}

// resolveNames maps every speaker in the batch to a display name. Failures
// degrade to a synthetic User_<id> name and are never cached, so a speaker
// resolves again next cycle.
func (s *Session) resolveNames(ctx context.Context, batch map[string][]byte) map[string]string {
	names := make(map[string]string, len(batch))
	for id := range batch {
		var name string
		if s.resolver != nil {
			got, err := s.resolver.DisplayName(ctx, s.guildID, id)
			if err != nil {
				slog.Debug("session: name resolution failed",
					"guild_id", s.guildID,
					"user_id", id,
					"error", err,
				)
			} else {
				name = got
			}
		}
		if name == "" {
			name = "User_" + id
		}
		names[id] = name
	}
	return names
}

// publishReport posts the starter message, opens a fresh thread on it and
// sends the chunked report into the thread. Publish failures are logged,
// never fatal to the session.
func (s *Session) publishReport(ctx context.Context, text string, final bool) {
	stamp := time.Now().UTC().Format(timeFormat)

	starter := fmt.Sprintf("📅 **Scheduled analysis** (%s)", stamp)
	threadName := "Discussion analysis " + stamp
	header := "📊 **Discussion analysis**\n"
	if final {
		starter = fmt.Sprintf("🛑 **Session ended** (%s)", stamp)
		threadName += " (final)"
		header = "🏁 **Final analysis**\n"
	}

	ref, err := s.publisher.Send(ctx, starter)
	if err != nil {
		slog.Warn("session: failed to publish starter message", "guild_id", s.guildID, "error", err)
		return
	}
	sent := int64(1)

	chunks := report.Chunks(header, text)
	thread, err := s.publisher.CreateThread(ctx, ref, threadName)
	if err != nil {
		// Degrade to plain channel messages so the report is not lost.
		slog.Warn("session: failed to create report thread", "guild_id", s.guildID, "error", err)
		for _, chunk := range chunks {
			if _, err := s.publisher.Send(ctx, chunk); err != nil {
				slog.Warn("session: failed to publish report chunk", "guild_id", s.guildID, "error", err)
				break
			}
			sent++
		}
		s.metrics.RecordPublished(ctx, sent)
		return
	}

	for _, chunk := range chunks {
		if err := thread.Send(ctx, chunk); err != nil {
			slog.Warn("session: failed to publish report chunk", "guild_id", s.guildID, "error", err)
			break
		}
		sent++
	}
	s.metrics.RecordPublished(ctx, sent)
}

// publishFailure maps an analysis error to its notice and outcome. The
// rolling context stays untouched and no thread is created.
func (s *Session) publishFailure(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, analysis.ErrNoCredential):
		s.notify(ctx, "🔑 No API key is configured for this server. Set one with `/settings set_key`.")
		return outcomeNoCredential

	case errors.Is(err, analysis.ErrRateLimited):
		// No backoff: the next scheduled cycle is the retry.
		s.notify(ctx, "⏳ The analysis backend is rate limiting us. This cycle was skipped; the next one will retry.")
		return outcomeRateLimited

	case errors.Is(err, analysis.ErrUploadFailed):
		s.notify(ctx, "⚠️ The captured audio could not be delivered to the analysis backend. This cycle was skipped.")
		return outcomeUploadFailed

	default:
		slog.Error("session: analysis failed", "guild_id", s.guildID, "error", err)
		s.notify(ctx, "⚠️ Analysis failed: "+truncate(err.Error(), errDetailLimit))
		return outcomeFailure
	}
}

// notify posts a single message to the session's channel, best effort.
func (s *Session) notify(ctx context.Context, text string) {
	if _, err := s.publisher.Send(ctx, text); err != nil {
		slog.Warn("session: failed to publish notice", "guild_id", s.guildID, "error", err)
		return
	}
	s.metrics.RecordPublished(ctx, 1)
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
