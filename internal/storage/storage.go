// Package storage abstracts the object store that holds uploaded audio
// blobs. The wearable client never streams audio through the API server:
// upload-init hands it a pre-signed PUT URL, the client uploads directly,
// and the job submission carries only the opaque audio reference. The
// pipeline later resolves that reference back into bytes for transcription.
//
// Two backends are provided: an S3-compatible store for production and a
// local-directory store for development.
package storage

import (
	"context"
	"errors"
	"time"
)

// Errors returned by Blobs implementations.
var (
	// ErrNotFound is returned by Fetch when the reference resolves to no
	// stored object.
	ErrNotFound = errors.New("audio object not found")

	// ErrBadReference is returned when an audio reference does not belong to
	// this backend or is malformed.
	ErrBadReference = errors.New("invalid audio reference")
)

// UploadTarget is the result of initialising an upload.
type UploadTarget struct {
	// UploadURL is the pre-signed URL the client PUTs the audio to. For the
	// filesystem backend this is a plain server-relative path.
	UploadURL string

	// AudioURL is the opaque reference the client echoes back in its job
	// submission; only this backend can resolve it.
	AudioURL string

	// ExpiresAt is when UploadURL stops being accepted.
	ExpiresAt time.Time
}

// Blobs is the narrow interface the rest of the system sees.
//
// Implementations must be safe for concurrent use.
type Blobs interface {
	// PresignUpload prepares an upload slot for an object named key with the
	// given content type.
	PresignUpload(ctx context.Context, key, contentType string) (*UploadTarget, error)

	// Fetch resolves audioURL and returns the object's bytes. maxBytes
	// bounds the read; an object larger than maxBytes still returns its
	// first maxBytes+1 bytes so the caller can detect the overrun without
	// buffering the whole blob.
	Fetch(ctx context.Context, audioURL string, maxBytes int64) ([]byte, error)
}
