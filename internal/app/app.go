// Package app wires all Memovox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and processes jobs until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithJobStore, WithBlobs, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tobiasmeyr/memovox/internal/api"
	"github.com/tobiasmeyr/memovox/internal/auth"
	"github.com/tobiasmeyr/memovox/internal/config"
	"github.com/tobiasmeyr/memovox/internal/health"
	"github.com/tobiasmeyr/memovox/internal/job"
	"github.com/tobiasmeyr/memovox/internal/pipeline"
	"github.com/tobiasmeyr/memovox/internal/resilience"
	"github.com/tobiasmeyr/memovox/internal/search"
	"github.com/tobiasmeyr/memovox/internal/session"
	"github.com/tobiasmeyr/memovox/internal/storage"
	"github.com/tobiasmeyr/memovox/pkg/provider/embeddings"
	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
	"github.com/tobiasmeyr/memovox/pkg/provider/summarizer"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT        stt.Provider
	Summarizer summarizer.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes for the Memovox backend.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	pool     *pgxpool.Pool
	jobs     job.Store
	sessions session.Store
	devices  auth.DeviceStore
	blobs    storage.Blobs
	authSvc  *auth.Service
	srch     *search.Service
	orch     *pipeline.Orchestrator
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVersion sets the version string reported by the health endpoint.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithJobStore injects a job store instead of creating one from config.
func WithJobStore(s job.Store) Option {
	return func(a *App) { a.jobs = s }
}

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithDeviceStore injects a device store instead of creating one from config.
func WithDeviceStore(s auth.DeviceStore) Option {
	return func(a *App) { a.devices = s }
}

// WithBlobs injects a blob store instead of creating one from config.
func WithBlobs(b storage.Blobs) Option {
	return func(a *App) { a.blobs = b }
}

// WithSearchIndex injects a search index instead of creating one from config.
func WithSearchIndex(idx search.Index) Option {
	return func(a *App) {
		if a.providers.Embeddings != nil {
			a.srch = search.NewService(a.providers.Embeddings, idx)
		}
	}
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}
	if err := a.initAuth(); err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}
	if err := a.initBlobs(); err != nil {
		return nil, fmt.Errorf("app: init blobs: %w", err)
	}
	if err := a.initSearch(ctx); err != nil {
		return nil, fmt.Errorf("app: init search: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// initStores connects to PostgreSQL and migrates the job, session, and
// device schemas. Skipped entirely when all three stores are injected.
func (a *App) initStores(ctx context.Context) error {
	if a.jobs != nil && a.sessions != nil && a.devices != nil {
		return nil
	}

	pool, err := a.connectPostgres(ctx)
	if err != nil {
		return err
	}

	if a.jobs == nil {
		store := job.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate jobs: %w", err)
		}
		a.jobs = store
	}
	if a.sessions == nil {
		store := session.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate sessions: %w", err)
		}
		a.sessions = store
	}
	if a.devices == nil {
		store := auth.NewPostgresDevices(pool)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate devices: %w", err)
		}
		a.devices = store
	}

	return nil
}

// connectPostgres opens the shared connection pool on first use.
func (a *App) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}

	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		return nil, errors.New("database.postgres_dsn is required when stores are not injected")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a.pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (a *App) initAuth() error {
	ttl := a.cfg.Auth.TokenTTL
	if ttl == 0 {
		ttl = auth.DefaultTokenTTL
	}
	svc, err := auth.NewService([]byte(a.cfg.Auth.TokenSecret), ttl, a.devices)
	if err != nil {
		return err
	}
	a.authSvc = svc
	return nil
}

// initBlobs creates the configured blob backend unless one was injected.
func (a *App) initBlobs() error {
	if a.blobs != nil {
		return nil
	}

	switch a.cfg.Storage.Backend {
	case config.BackendS3:
		s3 := a.cfg.Storage.S3
		blobs, err := storage.NewS3Blobs(storage.S3Config{
			Endpoint:      s3.Endpoint,
			Region:        s3.Region,
			Bucket:        s3.Bucket,
			AccessKey:     s3.AccessKey,
			SecretKey:     s3.SecretKey,
			UseSSL:        s3.UseSSL,
			PresignExpiry: s3.PresignExpiry,
		})
		if err != nil {
			return err
		}
		a.blobs = blobs

	case config.BackendFS, "":
		root := a.cfg.Storage.FS.Root
		if root == "" {
			root = "data/uploads"
		}
		blobs, err := storage.NewFSBlobs(root)
		if err != nil {
			return err
		}
		a.blobs = blobs

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}

	slog.Info("blob storage ready", "backend", a.cfg.Storage.Backend)
	return nil
}

// initSearch sets up semantic search when enabled. Requires an embeddings
// provider; the index lives in the same PostgreSQL database as the stores.
func (a *App) initSearch(ctx context.Context) error {
	if !a.cfg.Search.Enabled || a.srch != nil {
		return nil
	}
	if a.providers.Embeddings == nil {
		return errors.New("search.enabled requires an embeddings provider")
	}

	pool, err := a.connectPostgres(ctx)
	if err != nil {
		return err
	}
	idx := search.NewPostgresIndex(pool)
	if err := idx.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate search index: %w", err)
	}
	a.srch = search.NewService(a.providers.Embeddings, idx)
	return nil
}

func (a *App) initPipeline() error {
	if a.providers.STT == nil {
		slog.Warn("no STT provider configured; audio jobs will fail")
	}
	if a.providers.Summarizer == nil {
		slog.Warn("no summarizer provider configured; summary jobs will fail")
	}

	br := a.cfg.Pipeline.Breaker
	orch, err := pipeline.New(pipeline.Config{
		Store:         a.jobs,
		Blobs:         a.blobs,
		STT:           a.providers.STT,
		Summarizer:    a.providers.Summarizer,
		Search:        a.srch,
		Workers:       a.cfg.Pipeline.Workers,
		QueueCapacity: a.cfg.Pipeline.QueueCapacity,
		MaxAudioBytes: a.cfg.Pipeline.MaxAudioBytes,
		STTBreaker: resilience.New(resilience.Config{
			Name:        "stt",
			MaxFailures: br.MaxFailures,
			Cooldown:    br.Cooldown,
		}),
		SummarizerBreaker: resilience.New(resilience.Config{
			Name:        "summarizer",
			MaxFailures: br.MaxFailures,
			Cooldown:    br.Cooldown,
		}),
	})
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initServer() error {
	checkers := []health.Checker{}
	if a.pool != nil {
		pool := a.pool
		checkers = append(checkers, health.Checker{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}

	srv, err := api.NewServer(api.Config{
		Auth:     a.authSvc,
		Jobs:     a.jobs,
		Sessions: a.sessions,
		Blobs:    a.blobs,
		Pipeline: a.orch,
		Search:   a.srch,
		Health:   health.New(a.version, checkers...),
	})
	if err != nil {
		return err
	}

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/", srv.Handler())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run starts the HTTP server and the job pipeline and blocks until ctx is
// cancelled or either component fails. On cancellation the HTTP server is
// drained gracefully before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.orch.Run(ctx)
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening with TLS", "addr", a.server.Addr)
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.server.Addr)
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.orch != nil {
			a.orch.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Handler exposes the root HTTP handler for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}
