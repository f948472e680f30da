package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level is applied hot; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists config sections that changed but cannot be
	// applied without restarting the server.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Auth != new.Auth {
		d.RestartRequired = append(d.RestartRequired, "auth")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if !providersEqual(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers.stt")
	}
	if !providersEqual(old.Providers.Summarizer, new.Providers.Summarizer) {
		d.RestartRequired = append(d.RestartRequired, "providers.summarizer")
	}
	if !providersEqual(old.Providers.Embeddings, new.Providers.Embeddings) {
		d.RestartRequired = append(d.RestartRequired, "providers.embeddings")
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Search != new.Search {
		d.RestartRequired = append(d.RestartRequired, "search")
	}

	return d
}

func providersEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return reflect.DeepEqual(a.Options, b.Options)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
