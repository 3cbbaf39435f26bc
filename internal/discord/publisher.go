package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/discursa/discursa/internal/report"
)

// threadAutoArchive is the Discord auto-archive window for report
// threads, in minutes.
const threadAutoArchive = 60

// ChannelPublisher posts analysis reports to a fixed text channel. It
// implements report.Publisher; each capture session gets one bound to
// the channel the session was started from.
type ChannelPublisher struct {
	session   *discordgo.Session
	channelID string
}

var _ report.Publisher = (*ChannelPublisher)(nil)

// NewChannelPublisher creates a publisher bound to channelID.
func NewChannelPublisher(session *discordgo.Session, channelID string) *ChannelPublisher {
	return &ChannelPublisher{session: session, channelID: channelID}
}

// Send posts one message to the channel.
func (p *ChannelPublisher) Send(ctx context.Context, text string) (report.MessageRef, error) {
	msg, err := p.session.ChannelMessageSend(p.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return report.MessageRef{}, fmt.Errorf("send message to channel %s: %w", p.channelID, err)
	}
	return report.MessageRef{ChannelID: p.channelID, MessageID: msg.ID}, nil
}

// CreateThread opens a thread anchored to a previously sent message.
func (p *ChannelPublisher) CreateThread(ctx context.Context, ref report.MessageRef, name string) (report.Thread, error) {
	thread, err := p.session.MessageThreadStartComplex(ref.ChannelID, ref.MessageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadAutoArchive,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("start thread on message %s: %w", ref.MessageID, err)
	}
	return &messageThread{session: p.session, threadID: thread.ID}, nil
}

// messageThread posts into a thread channel.
type messageThread struct {
	session  *discordgo.Session
	threadID string
}

func (t *messageThread) Send(ctx context.Context, text string) error {
	if _, err := t.session.ChannelMessageSend(t.threadID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send message to thread %s: %w", t.threadID, err)
	}
	return nil
}
