package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FSBlobs is a [Blobs] backed by a local directory, for development and
// tests. Audio references have the form "file://<key>". There is no real
// pre-signing: the upload URL is a server-relative PUT path that the API
// serves directly.
type FSBlobs struct {
	root string
}

// Compile-time interface check.
var _ Blobs = (*FSBlobs)(nil)

// NewFSBlobs creates a [Blobs] rooted at dir, creating it if necessary.
func NewFSBlobs(dir string) (*FSBlobs, error) {
	if dir == "" {
		return nil, errors.New("storage: fs root must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %q: %w", dir, err)
	}
	return &FSBlobs{root: dir}, nil
}

// PresignUpload implements [Blobs].
func (b *FSBlobs) PresignUpload(_ context.Context, key, _ string) (*UploadTarget, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	return &UploadTarget{
		UploadURL: "/v1/uploads/" + key,
		AudioURL:  "file://" + key,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}

// Put stores an uploaded object. Used by the API's direct-upload route that
// stands in for a pre-signed PUT when running on the filesystem backend.
func (b *FSBlobs) Put(_ context.Context, key string, r io.Reader) error {
	if err := validKey(key); err != nil {
		return err
	}
	dst := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for %q: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("storage: create %q: %w", key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	return nil
}

// Fetch implements [Blobs].
func (b *FSBlobs) Fetch(_ context.Context, audioURL string, maxBytes int64) ([]byte, error) {
	key, ok := strings.CutPrefix(audioURL, "file://")
	if !ok {
		return nil, fmt.Errorf("storage: %q: %w", audioURL, ErrBadReference)
	}
	if err := validKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(b.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: %q: %w", audioURL, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: open %q: %w", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return data, nil
}

// validKey rejects keys that would escape the storage root.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.Contains(key, "..") {
		return fmt.Errorf("storage: key %q: %w", key, ErrBadReference)
	}
	return nil
}
