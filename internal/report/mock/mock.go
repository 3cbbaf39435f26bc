// Package mock provides in-memory mock implementations of the
// [report.Publisher] and [report.Thread] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every message so
// tests can assert on what was published, and they expose exported fields
// to control failures.
//
// Typical usage:
//
//	pub := &mock.Publisher{}
//	ref, err := pub.Send(ctx, "starter")
//	th, err := pub.CreateThread(ctx, ref, "thread name")
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/discursa/discursa/internal/report"
)

// Compile-time interface assertions.
var (
	_ report.Publisher = (*Publisher)(nil)
	_ report.Thread    = (*Thread)(nil)
)

// Publisher is a mock [report.Publisher]. The zero value is ready to use;
// every Send returns a fresh MessageRef.
type Publisher struct {
	mu sync.Mutex

	// SendErr, when set, is returned by Send.
	SendErr error
	// CreateThreadErr, when set, is returned by CreateThread.
	CreateThreadErr error

	// Sent records the text of every successful Send.
	Sent []string
	// ThreadNames records the name of every successfully created thread.
	ThreadNames []string
	// ThreadRefs records the anchor ref of every successfully created thread.
	ThreadRefs []report.MessageRef
	// Threads holds the created thread mocks, in creation order.
	Threads []*Thread

	seq int
}

func (p *Publisher) Send(_ context.Context, text string) (report.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return report.MessageRef{}, p.SendErr
	}
	p.seq++
	p.Sent = append(p.Sent, text)
	return report.MessageRef{
		ChannelID: "mock-channel",
		MessageID: fmt.Sprintf("msg-%d", p.seq),
	}, nil
}

func (p *Publisher) CreateThread(_ context.Context, ref report.MessageRef, name string) (report.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateThreadErr != nil {
		return nil, p.CreateThreadErr
	}
	th := &Thread{}
	p.ThreadNames = append(p.ThreadNames, name)
	p.ThreadRefs = append(p.ThreadRefs, ref)
	p.Threads = append(p.Threads, th)
	return th, nil
}

// Messages returns a snapshot of the recorded Send texts.
func (p *Publisher) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Sent...)
}

// LastThread returns the most recently created thread, or nil.
func (p *Publisher) LastThread() *Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Threads) == 0 {
		return nil
	}
	return p.Threads[len(p.Threads)-1]
}

// Thread is a mock [report.Thread] that records every message.
type Thread struct {
	mu sync.Mutex

	// SendErr, when set, is returned by Send.
	SendErr error

	// Sent records the text of every successful Send.
	Sent []string
}

func (t *Thread) Send(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return t.SendErr
	}
	t.Sent = append(t.Sent, text)
	return nil
}

// Messages returns a snapshot of the recorded texts.
func (t *Thread) Messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Sent...)
}
