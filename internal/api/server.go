// Package api exposes the HTTP/JSON surface of Memovox: anonymous device
// registration, upload initiation, transcript submission and polling,
// session listing, and semantic search.
//
// Routing uses the stdlib ServeMux with method-qualified patterns. All /v1
// routes require a bearer token; /auth/anonymous and the health endpoints do
// not. Every response is JSON; errors use a uniform
// {"error":{"code","message"}} envelope.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/tobiasmeyr/memovox/internal/auth"
	"github.com/tobiasmeyr/memovox/internal/health"
	"github.com/tobiasmeyr/memovox/internal/job"
	"github.com/tobiasmeyr/memovox/internal/observe"
	"github.com/tobiasmeyr/memovox/internal/search"
	"github.com/tobiasmeyr/memovox/internal/session"
	"github.com/tobiasmeyr/memovox/internal/storage"
)

// Submitter hands persisted jobs to the processing pipeline. Implemented by
// the pipeline orchestrator.
type Submitter interface {
	Submit(ctx context.Context, jobID string) error
}

// BlobPutter is the optional direct-upload extension of [storage.Blobs].
// The filesystem backend implements it; its "pre-signed" upload URLs are
// server-relative PUT paths handled by the upload route.
type BlobPutter interface {
	Put(ctx context.Context, key string, r io.Reader) error
}

// Config assembles a [Server].
type Config struct {
	Auth     *auth.Service
	Jobs     job.Store
	Sessions session.Store
	Blobs    storage.Blobs
	Pipeline Submitter

	// Search is optional; when nil the search route is not registered.
	Search *search.Service

	// Health serves /health, /healthz and /readyz.
	Health *health.Handler

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MaxBodyBytes caps request bodies on JSON routes. Default 1 MiB.
	MaxBodyBytes int64

	// PageLimit is the default page size for list endpoints. Default 20.
	PageLimit int
}

// Server is the HTTP API. Create with [NewServer], mount via [Server.Handler].
type Server struct {
	auth     *auth.Service
	jobs     job.Store
	sessions session.Store
	blobs    storage.Blobs
	pipeline Submitter
	search   *search.Service
	health   *health.Handler
	metrics  *observe.Metrics

	maxBodyBytes int64
	pageLimit    int
}

// NewServer validates cfg and builds the server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("api: auth service is required")
	}
	if cfg.Jobs == nil {
		return nil, errors.New("api: job store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("api: session store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("api: blob storage is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("api: pipeline is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 20
	}
	return &Server{
		auth:         cfg.Auth,
		jobs:         cfg.Jobs,
		sessions:     cfg.Sessions,
		blobs:        cfg.Blobs,
		pipeline:     cfg.Pipeline,
		search:       cfg.Search,
		health:       cfg.Health,
		metrics:      cfg.Metrics,
		maxBodyBytes: cfg.MaxBodyBytes,
		pageLimit:    cfg.PageLimit,
	}, nil
}

// Handler returns the fully routed handler, with observability middleware on
// the outside and bearer auth on every /v1 route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/anonymous", s.handleAnonymous)
	if s.health != nil {
		s.health.Register(mux)
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/upload-init", s.handleUploadInit)
	v1.HandleFunc("POST /v1/transcripts", s.handleSubmitTranscript)
	v1.HandleFunc("GET /v1/transcripts/{id}", s.handleGetTranscript)
	v1.HandleFunc("GET /v1/sessions", s.handleListSessions)
	v1.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	if s.search != nil {
		v1.HandleFunc("GET /v1/search", s.handleSearch)
	}
	if _, ok := s.blobs.(BlobPutter); ok {
		v1.HandleFunc("PUT /v1/uploads/{key...}", s.handleUpload)
	}
	mux.Handle("/v1/", s.auth.Middleware(v1))

	return observe.Middleware(s.metrics)(mux)
}
