package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for an S3-compatible object store
// (AWS S3, MinIO, Cloudflare R2, …).
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool

	// PresignExpiry is how long pre-signed upload URLs stay valid.
	// Zero means 15 minutes.
	PresignExpiry time.Duration
}

// S3Blobs is a [Blobs] backed by an S3-compatible store. Audio references
// have the form "s3://<bucket>/<key>".
type S3Blobs struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// Compile-time interface check.
var _ Blobs = (*S3Blobs)(nil)

// NewS3Blobs creates a [Blobs] backed by the configured S3-compatible store.
func NewS3Blobs(cfg S3Config) (*S3Blobs, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage: s3 endpoint must not be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage: s3 bucket must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Blobs{client: client, bucket: cfg.Bucket, presignExpiry: expiry}, nil
}

// PresignUpload implements [Blobs].
func (b *S3Blobs) PresignUpload(ctx context.Context, key, _ string) (*UploadTarget, error) {
	u, err := b.client.PresignedPutObject(ctx, b.bucket, key, b.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("storage: presign put %q: %w", key, err)
	}
	return &UploadTarget{
		UploadURL: u.String(),
		AudioURL:  "s3://" + b.bucket + "/" + key,
		ExpiresAt: time.Now().Add(b.presignExpiry),
	}, nil
}

// Fetch implements [Blobs].
func (b *S3Blobs) Fetch(ctx context.Context, audioURL string, maxBytes int64) ([]byte, error) {
	key, err := b.parseReference(audioURL)
	if err != nil {
		return nil, err
	}

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxBytes+1))
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("storage: %q: %w", audioURL, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %q: %w", key, err)
	}
	if len(data) == 0 {
		// minio defers the NoSuchKey error until the first read on some
		// backends; probe the object stat to tell missing from empty.
		if _, statErr := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); statErr != nil {
			return nil, fmt.Errorf("storage: %q: %w", audioURL, ErrNotFound)
		}
	}
	return data, nil
}

// parseReference extracts the object key from an s3:// audio reference and
// checks it belongs to this backend's bucket.
func (b *S3Blobs) parseReference(audioURL string) (string, error) {
	rest, ok := strings.CutPrefix(audioURL, "s3://")
	if !ok {
		return "", fmt.Errorf("storage: %q: %w", audioURL, ErrBadReference)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", fmt.Errorf("storage: %q: %w", audioURL, ErrBadReference)
	}
	if bucket != b.bucket {
		return "", fmt.Errorf("storage: bucket %q: %w", bucket, ErrBadReference)
	}
	return key, nil
}
