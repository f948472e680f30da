// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a canned Result (or error) and to inspect the audio
// payloads and options the caller passed to Transcribe.
package mock

import (
	"context"
	"sync"

	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the payload passed to Transcribe.
	Audio []byte
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil. If both are nil,
	// Transcribe returns an empty Result.
	Result *stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(_ context.Context, audio []byte, opts stt.Options) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: cp, Opts: opts})

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		r := *p.Result
		return &r, nil
	}
	return &stt.Result{}, nil
}

// Calls returns the number of recorded Transcribe invocations. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
