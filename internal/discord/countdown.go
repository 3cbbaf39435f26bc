package discord

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// countdownInterval is how often the countdown message is refreshed.
const countdownInterval = time.Minute

// Countdown maintains a status message in the channel a capture was
// started from, showing when the next analysis is due. It is purely
// cosmetic: update failures stop the refresh loop but never affect the
// capture session itself.
type Countdown struct {
	session   *discordgo.Session
	channelID string
	messageID string
	nextAt    func() (time.Time, bool)

	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown posts the status message to channelID and refreshes
// it once a minute. nextAt reports when the next analysis cycle is
// due; once it reports false the loop ends with a final update.
// Returns nil when the initial post fails. Stop tolerates a nil
// receiver, so callers need not check.
func StartCountdown(s *discordgo.Session, channelID string, nextAt func() (time.Time, bool)) *Countdown {
	c := &Countdown{
		session:   s,
		channelID: channelID,
		nextAt:    nextAt,
		done:      make(chan struct{}),
	}

	msg, err := s.ChannelMessageSend(channelID, c.render())
	if err != nil {
		slog.Warn("failed to post countdown message", "channel", channelID, "error", err)
		return nil
	}
	c.messageID = msg.ID

	go c.loop()
	return c
}

func (c *Countdown) loop() {
	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if _, ok := c.nextAt(); !ok {
				c.finish()
				return
			}
			if _, err := c.session.ChannelMessageEdit(c.channelID, c.messageID, c.render()); err != nil {
				slog.Warn("countdown update failed, stopping updates", "channel", c.channelID, "error", err)
				return
			}
		}
	}
}

// render produces the current status line.
func (c *Countdown) render() string {
	at, ok := c.nextAt()
	if !ok {
		return "⏱️ Recording in progress."
	}
	remaining := time.Until(at)
	if remaining <= 0 {
		return "⏱️ Recording in progress. Analysis due now."
	}
	return "⏱️ Recording in progress. Next analysis in " + formatDuration(remaining) + "."
}

// Stop halts the refresh loop and marks the message as ended. Safe to
// call more than once and on a nil receiver.
func (c *Countdown) Stop() {
	if c == nil {
		return
	}
	c.finish()
}

func (c *Countdown) finish() {
	c.stopOnce.Do(func() {
		close(c.done)
		if _, err := c.session.ChannelMessageEdit(c.channelID, c.messageID, "🛑 Recording ended."); err != nil {
			slog.Warn("failed to post final countdown update", "channel", c.channelID, "error", err)
		}
	})
}

// formatDuration renders a duration as "1h 4m 10s", dropping leading
// zero units.
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
