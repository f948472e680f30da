// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/tobiasmeyr/memovox/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider. The zero value
// produces 8-dimensional vectors derived from the input length, which is
// enough to make distinct texts produce distinct vectors in tests.
type Provider struct {
	mu sync.Mutex

	// Vector, if non-nil, is returned by every Embed call.
	Vector []float32

	// Err, if non-nil, is returned as the error from Embed.
	Err error

	// Dims overrides the reported dimensionality. Zero means 8.
	Dims int

	// EmbedCalls records the input text of every call to Embed.
	EmbedCalls []string
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns Vector, Err.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, text)

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Vector != nil {
		v := make([]float32, len(p.Vector))
		copy(v, p.Vector)
		return v, nil
	}

	v := make([]float32, p.dims())
	for i := range v {
		v[i] = float32((len(text)+i)%17) / 17
	}
	return v, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Vector != nil {
		return len(p.Vector)
	}
	return p.dims()
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock" }

func (p *Provider) dims() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return 8
}
