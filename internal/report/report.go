// Package report defines the publish capability for analysis results and
// the chunking of long reports into message-sized pieces.
package report

import "context"

// MessageRef identifies a published message so a thread can be anchored
// to it.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Thread is a sub-conversation hanging off one published message.
type Thread interface {
	// Send posts one message into the thread.
	Send(ctx context.Context, text string) error
}

// Publisher posts messages to a session's text channel.
type Publisher interface {
	// Send posts one message and returns a reference to it.
	Send(ctx context.Context, text string) (MessageRef, error)

	// CreateThread opens a thread anchored to a previously sent message.
	CreateThread(ctx context.Context, ref MessageRef, name string) (Thread, error)
}
