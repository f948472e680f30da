// Package summarizer defines the Provider interface for text summarization
// backends.
//
// A summarizer wraps an LLM API (OpenAI, Anthropic, a local Ollama instance,
// …) behind a single operation: transcript text in, short summary out. The
// pipeline invokes it once per job, only when the submission asked for a
// summary, and only after a transcript exists.
//
// Implementations must be safe for concurrent use.
package summarizer

import "context"

// Summary is the outcome of a successful summarization.
type Summary struct {
	// Model is the identifier of the model that produced the summary
	// (e.g., "gpt-4o-mini"). Stored verbatim on the job for attribution.
	Model string

	// Text is the summary itself.
	Text string
}

// Provider is the abstraction over any summarization backend.
//
// Summarize must return a non-nil Summary with non-empty Text on success; an
// empty model response is an error, not an empty summary. Implementations
// must be safe for concurrent use and should bound each call with their own
// request timeout.
type Provider interface {
	Summarize(ctx context.Context, text string) (*Summary, error)
}
