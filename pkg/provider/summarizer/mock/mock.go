// Package mock provides a test double for the summarizer.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/tobiasmeyr/memovox/pkg/provider/summarizer"
)

// Provider is a mock implementation of summarizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Summary is returned by Summarize when Err is nil. If both are nil,
	// Summarize returns {Model: "mock", Text: "summary of: <input>"}.
	Summary *summarizer.Summary

	// Err, if non-nil, is returned as the error from Summarize.
	Err error

	// SummarizeCalls records the input text of every call to Summarize.
	SummarizeCalls []string
}

// Ensure Provider implements summarizer.Provider at compile time.
var _ summarizer.Provider = (*Provider)(nil)

// Summarize records the call and returns Summary, Err.
func (p *Provider) Summarize(_ context.Context, text string) (*summarizer.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SummarizeCalls = append(p.SummarizeCalls, text)

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Summary != nil {
		s := *p.Summary
		return &s, nil
	}
	return &summarizer.Summary{Model: "mock", Text: "summary of: " + text}, nil
}

// Calls returns the number of recorded Summarize invocations. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SummarizeCalls)
}
