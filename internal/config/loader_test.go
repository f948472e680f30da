package config_test

import (
	"strings"
	"testing"

	"github.com/tobiasmeyr/memovox/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Auth:     config.AuthConfig{TokenSecret: "s"},
		Database: config.DatabaseConfig{PostgresDSN: "postgres://localhost/memovox"},
	}
}

func TestValidate_MinimalConfig(t *testing.T) {
	if err := config.Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "verbose"},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, want := range []string{
		"server.log_level",
		"auth.token_secret is required",
		"database.postgres_dsn is required",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestValidate_InvalidStorageBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "gcs"
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("err = %v, want storage.backend error", err)
	}
}

func TestValidate_S3RequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = config.BackendS3
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "storage.s3.bucket") {
		t.Errorf("err = %v, want s3 bucket error", err)
	}

	cfg.Storage.S3.Bucket = "memovox-audio"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error with bucket set: %v", err)
	}
}

func TestValidate_SearchRequiresEmbeddings(t *testing.T) {
	cfg := validConfig()
	cfg.Search.Enabled = true
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "providers.embeddings") {
		t.Errorf("err = %v, want embeddings requirement", err)
	}

	cfg.Providers.Embeddings.Name = "openai"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error with embeddings set: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	cfg := validConfig()
	cfg.Server.TLS = &config.TLSConfig{CertFile: "server.crt"}
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Errorf("err = %v, want tls error", err)
	}
}

func TestValidate_NegativePipelineValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Pipeline.Workers = -1 }, "pipeline.workers"},
		{"queue capacity", func(c *config.Config) { c.Pipeline.QueueCapacity = -1 }, "pipeline.queue_capacity"},
		{"max audio bytes", func(c *config.Config) { c.Pipeline.MaxAudioBytes = -1 }, "pipeline.max_audio_bytes"},
		{"breaker failures", func(c *config.Config) { c.Pipeline.Breaker.MaxFailures = -1 }, "pipeline.breaker.max_failures"},
		{"breaker cooldown", func(c *config.Config) { c.Pipeline.Breaker.Cooldown = -1 }, "pipeline.breaker.cooldown"},
		{"token ttl", func(c *config.Config) { c.Auth.TokenTTL = -1 }, "auth.token_ttl"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q", err, tc.want)
			}
		})
	}
}
