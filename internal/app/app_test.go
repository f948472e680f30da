package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tobiasmeyr/memovox/internal/app"
	authmock "github.com/tobiasmeyr/memovox/internal/auth/mock"
	"github.com/tobiasmeyr/memovox/internal/config"
	jobmock "github.com/tobiasmeyr/memovox/internal/job/mock"
	searchmock "github.com/tobiasmeyr/memovox/internal/search/mock"
	sessionmock "github.com/tobiasmeyr/memovox/internal/session/mock"
	storagemock "github.com/tobiasmeyr/memovox/internal/storage/mock"
	embmock "github.com/tobiasmeyr/memovox/pkg/provider/embeddings/mock"
	sttmock "github.com/tobiasmeyr/memovox/pkg/provider/stt/mock"
	summock "github.com/tobiasmeyr/memovox/pkg/provider/summarizer/mock"
)

// testConfig returns a minimal config for tests. Stores are injected so no
// database connection is attempted.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Auth: config.AuthConfig{TokenSecret: "test-secret"},
		Search: config.SearchConfig{
			Enabled: true,
		},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		STT:        &sttmock.Provider{},
		Summarizer: &summock.Provider{},
		Embeddings: &embmock.Provider{},
	}
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithVersion("test"),
		app.WithJobStore(jobmock.NewStore()),
		app.WithSessionStore(sessionmock.NewStore()),
		app.WithDeviceStore(authmock.NewDeviceStore()),
		app.WithBlobs(storagemock.NewBlobs()),
		app.WithSearchIndex(searchmock.NewIndex()),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()
	newTestApp(t)
}

func TestNew_MissingTokenSecret(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Auth.TokenSecret = ""

	_, err := app.New(context.Background(), cfg, testProviders(),
		app.WithJobStore(jobmock.NewStore()),
		app.WithSessionStore(sessionmock.NewStore()),
		app.WithDeviceStore(authmock.NewDeviceStore()),
		app.WithBlobs(storagemock.NewBlobs()),
		app.WithSearchIndex(searchmock.NewIndex()),
	)
	if err == nil {
		t.Fatal("expected error for empty token secret")
	}
}

func TestHandler_ServesHealthAndAuth(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	handler := a.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	var healthBody struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&healthBody); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if healthBody.Status != "ok" || healthBody.Version != "test" {
		t.Errorf("health = %+v", healthBody)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/anonymous", strings.NewReader(`{"deviceModel":"pixel-9"}`))
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /auth/anonymous = %d, want 200", rec.Code)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Let the server come up, then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}
