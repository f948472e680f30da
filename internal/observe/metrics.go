// Package observe provides application-wide observability primitives for
// Memovox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Memovox metrics.
const meterName = "github.com/tobiasmeyr/memovox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// SummarizeDuration tracks summarization latency.
	SummarizeDuration metric.Float64Histogram

	// JobDuration tracks end-to-end pipeline latency from dequeue to
	// terminal state.
	JobDuration metric.Float64Histogram

	// --- Counters ---

	// JobsSubmitted counts accepted submissions. Use with attribute:
	//   attribute.String("input", "audio"|"text")
	JobsSubmitted metric.Int64Counter

	// JobsFinished counts jobs reaching a terminal state. Use with attribute:
	//   attribute.String("status", "COMPLETE"|"FAILED")
	JobsFinished metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attribute:
	//   attribute.String("kind", "stt"|"summarizer"|"embeddings")
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of jobs waiting in the dispatch queue.
	QueueDepth metric.Int64UpDownCounter

	// ActiveJobs tracks the number of jobs currently being processed.
	ActiveJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	// where route is the matched ServeMux pattern, not the raw path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// provider round-trips on multi-minute memos.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("memovox.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarizeDuration, err = m.Float64Histogram("memovox.summarize.duration",
		metric.WithDescription("Latency of transcript summarization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("memovox.job.duration",
		metric.WithDescription("End-to-end pipeline latency per job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.JobsSubmitted, err = m.Int64Counter("memovox.jobs.submitted",
		metric.WithDescription("Total accepted job submissions by input kind."),
	); err != nil {
		return nil, err
	}
	if met.JobsFinished, err = m.Int64Counter("memovox.jobs.finished",
		metric.WithDescription("Total jobs reaching a terminal state, by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("memovox.provider.errors",
		metric.WithDescription("Total provider errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("memovox.queue.depth",
		metric.WithDescription("Jobs waiting in the dispatch queue."),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("memovox.jobs.active",
		metric.WithDescription("Jobs currently being processed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("memovox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordJobFinished records a terminal-state counter increment.
func (m *Metrics) RecordJobFinished(ctx context.Context, status string) {
	m.JobsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
