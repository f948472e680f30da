// Package mock provides an in-memory storage.Blobs for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tobiasmeyr/memovox/internal/storage"
)

// Blobs is an in-memory implementation of storage.Blobs. Seed Objects with
// audio references mapped to payloads.
type Blobs struct {
	mu sync.Mutex

	// Objects maps audio references to stored payloads.
	Objects map[string][]byte

	// FetchErr, if non-nil, is returned by every Fetch call.
	FetchErr error

	// FetchCalls records every audio reference passed to Fetch.
	FetchCalls []string
}

// Compile-time interface check.
var _ storage.Blobs = (*Blobs)(nil)

// NewBlobs returns an empty in-memory blob store.
func NewBlobs() *Blobs {
	return &Blobs{Objects: make(map[string][]byte)}
}

// PresignUpload implements storage.Blobs.
func (b *Blobs) PresignUpload(_ context.Context, key, _ string) (*storage.UploadTarget, error) {
	return &storage.UploadTarget{
		UploadURL: "https://upload.example.test/" + key,
		AudioURL:  "mock://" + key,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

// Fetch implements storage.Blobs.
func (b *Blobs) Fetch(_ context.Context, audioURL string, maxBytes int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.FetchCalls = append(b.FetchCalls, audioURL)

	if b.FetchErr != nil {
		return nil, b.FetchErr
	}
	data, ok := b.Objects[audioURL]
	if !ok {
		return nil, fmt.Errorf("mock: %q: %w", audioURL, storage.ErrNotFound)
	}
	if int64(len(data)) > maxBytes {
		data = data[:maxBytes+1]
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
