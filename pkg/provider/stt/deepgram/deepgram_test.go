package deepgram

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("dg-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.endpoint != deepgramEndpoint {
		t.Errorf("endpoint = %q, want %q", p.endpoint, deepgramEndpoint)
	}
	if p.timeout != 60*time.Second {
		t.Errorf("timeout = %v, want 60s", p.timeout)
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("dg-test",
		WithModel("nova-2"),
		WithLanguage("de"),
		WithEndpoint("wss://dg.example.com/v1/listen"),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "nova-2" || p.language != "de" || p.timeout != 5*time.Second {
		t.Errorf("options not applied: %+v", p)
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("dg-test", WithModel("nova-2"), WithLanguage("en"))
	if err != nil {
		t.Fatal(err)
	}

	raw, err := p.buildURL(stt.Options{Language: "de"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}

	q := u.Query()
	if q.Get("model") != "nova-2" {
		t.Errorf("model = %q, want nova-2", q.Get("model"))
	}
	// Per-request language overrides the configured default.
	if q.Get("language") != "de" {
		t.Errorf("language = %q, want de", q.Get("language"))
	}
	if q.Get("interim_results") != "false" {
		t.Errorf("interim_results = %q, want false", q.Get("interim_results"))
	}
}

func TestBuildURL_FallsBackToConfiguredLanguage(t *testing.T) {
	p, err := New("dg-test", WithLanguage("fr"))
	if err != nil {
		t.Fatal(err)
	}

	raw, err := p.buildURL(stt.Options{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(raw, "language=fr") {
		t.Errorf("url %q missing language=fr", raw)
	}
}

func TestResolveLanguage(t *testing.T) {
	p, err := New("dg-test")
	if err != nil {
		t.Fatal(err)
	}

	// No per-request override: the configured default is the language that
	// was sent, so it must be the one reported back.
	if got := p.resolveLanguage(stt.Options{}); got != defaultLanguage {
		t.Errorf("resolveLanguage(zero) = %q, want %q", got, defaultLanguage)
	}
	if got := p.resolveLanguage(stt.Options{Language: "de"}); got != "de" {
		t.Errorf("resolveLanguage(de) = %q, want de", got)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := New("dg-test")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Transcribe(context.Background(), nil, stt.Options{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
