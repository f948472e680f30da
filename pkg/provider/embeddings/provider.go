// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text to dense float32 vectors. Memovox uses it
// to index completed memo transcripts for semantic search: the pipeline
// embeds each transcript once, and the search endpoint embeds the query and
// ranks by cosine distance.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions); mixing vectors from different
// instances in one similarity computation is only valid when both use the
// same model.
type Provider interface {
	// Embed computes the embedding vector for text. The returned slice has
	// length Dimensions(). Text is passed through verbatim; any model-specific
	// formatting (query prefixes etc.) is the caller's concern.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier
	// (e.g., "text-embedding-3-small"). Useful for logging and for checking
	// index/model consistency.
	ModelID() string
}
