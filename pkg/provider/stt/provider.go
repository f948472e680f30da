// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a remote transcription service (e.g., the OpenAI
// audio API or Deepgram) and exposes a uniform batch interface: a complete
// audio payload in, a final transcript out. Memovox processes whole voice
// memos after upload, so there is no streaming surface here — providers that
// only speak a streaming protocol (Deepgram) adapt it internally by sending
// the full payload and collecting the final results.
//
// Implementations must be safe for concurrent use; the pipeline transcribes
// multiple jobs at once.
package stt

import "context"

// Options carries recognition hints for a single transcription request.
type Options struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// MIMEType is the content type of the audio payload (e.g., "audio/wav").
	// Providers that need a filename extension derive it from this. An empty
	// string means unknown; providers should fall back to their default.
	MIMEType string
}

// Result is the outcome of a successful transcription.
type Result struct {
	// Text is the full transcript of the audio payload.
	Text string

	// Language is the language the provider detected or was told to use.
	// May be empty if the provider does not report it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence (e.g., OpenAI whisper).
	Confidence float64
}

// Provider is the abstraction over any batch speech-to-text backend.
//
// Implementations must be safe for concurrent use. Each call should respect
// ctx cancellation and its own request timeout; a timeout is surfaced as an
// ordinary error, which the pipeline maps to a failed job.
type Provider interface {
	// Transcribe submits the complete audio payload for recognition and
	// returns the final transcript. audio must be non-empty; validating size
	// and format is the caller's responsibility.
	Transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error)
}
