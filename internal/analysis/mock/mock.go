// Package mock provides an in-memory mock implementation of the
// [analysis.Invoker] interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every request so tests
// can assert on what was analyzed, and exposes exported fields to control
// the outcome.
//
// Typical usage:
//
//	inv := &mock.Invoker{AnalyzeResult: "report text"}
//	got, err := inv.Analyze(ctx, analysis.Request{...})
package mock

import (
	"context"
	"sync"

	"github.com/discursa/discursa/internal/analysis"
)

// Compile-time interface assertion.
var _ analysis.Invoker = (*Invoker)(nil)

// Invoker is a mock [analysis.Invoker].
type Invoker struct {
	mu sync.Mutex

	// AnalyzeResult is returned by Analyze when AnalyzeErr is nil.
	AnalyzeResult string
	// AnalyzeErr, when set, is returned by Analyze instead of AnalyzeResult.
	AnalyzeErr error
	// AnalyzeFunc, when set, overrides AnalyzeResult and AnalyzeErr. Useful
	// for per-call behavior such as failing once and then succeeding.
	AnalyzeFunc func(ctx context.Context, req analysis.Request) (string, error)

	// AnalyzeCalls records every request passed to Analyze.
	AnalyzeCalls []analysis.Request
}

func (m *Invoker) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	m.mu.Lock()
	m.AnalyzeCalls = append(m.AnalyzeCalls, req)
	fn := m.AnalyzeFunc
	result, err := m.AnalyzeResult, m.AnalyzeErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

// Calls returns a snapshot of the recorded requests.
func (m *Invoker) Calls() []analysis.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]analysis.Request(nil), m.AnalyzeCalls...)
}
