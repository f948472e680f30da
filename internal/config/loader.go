package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"openai", "deepgram"},
	"summarizer": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Auth
	if cfg.Auth.TokenSecret == "" {
		errs = append(errs, errors.New("auth.token_secret is required"))
	}
	if cfg.Auth.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl %s must not be negative", cfg.Auth.TokenTTL))
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: s3, fs", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == BackendS3 && cfg.Storage.S3.Bucket == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required when storage.backend is s3"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("summarizer", cfg.Providers.Summarizer.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; audio submissions will fail")
	}
	if cfg.Providers.Summarizer.Name == "" {
		slog.Warn("no summarizer provider configured; summary requests will fail")
	}

	// Search requires embeddings.
	if cfg.Search.Enabled && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("search.enabled requires providers.embeddings to be configured"))
	}

	// Pipeline
	if cfg.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers %d must not be negative", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_capacity %d must not be negative", cfg.Pipeline.QueueCapacity))
	}
	if cfg.Pipeline.MaxAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_audio_bytes %d must not be negative", cfg.Pipeline.MaxAudioBytes))
	}
	if cfg.Pipeline.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("pipeline.breaker.max_failures %d must not be negative", cfg.Pipeline.Breaker.MaxFailures))
	}
	if cfg.Pipeline.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("pipeline.breaker.cooldown %s must not be negative", cfg.Pipeline.Breaker.Cooldown))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
