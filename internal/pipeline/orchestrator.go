// Package pipeline implements the asynchronous transcript processing
// pipeline: a bounded worker pool consumes job ids from an in-process queue,
// drives each job through the status state machine
// (PENDING → TRANSCRIBING → SUMMARIZING → COMPLETE/FAILED), and persists
// every transition before starting the next stage.
//
// The durable job table is the source of truth, not process memory: on
// startup all non-terminal jobs are re-enqueued, so a crash mid-stage means
// re-processing, never a lost job. There is no automatic retry — a provider
// failure moves the job to FAILED and the client decides whether to submit
// again under a new idempotency key.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tobiasmeyr/memovox/internal/job"
	"github.com/tobiasmeyr/memovox/internal/observe"
	"github.com/tobiasmeyr/memovox/internal/resilience"
	"github.com/tobiasmeyr/memovox/internal/search"
	"github.com/tobiasmeyr/memovox/internal/storage"
	"github.com/tobiasmeyr/memovox/pkg/provider/stt"
	"github.com/tobiasmeyr/memovox/pkg/provider/summarizer"
)

// Config assembles an [Orchestrator].
type Config struct {
	Store job.Store
	Blobs storage.Blobs

	// STT and Summarizer are optional. A nil provider fails the jobs that
	// need it with a descriptive error rather than preventing startup, so
	// text-only deployments can run without an STT key.
	STT        stt.Provider
	Summarizer summarizer.Provider

	// Search, when non-nil, receives completed transcripts for semantic
	// indexing. Indexing is best effort and never affects job status.
	Search *search.Service

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Workers is the worker pool size. Default: 4.
	Workers int

	// QueueCapacity bounds the dispatch queue. Default: 256.
	QueueCapacity int

	// MaxAudioBytes caps fetched audio payloads.
	// Default: [DefaultMaxAudioBytes].
	MaxAudioBytes int64

	// STTBreaker and SummarizerBreaker guard the provider calls. Defaults
	// are created when nil.
	STTBreaker        *resilience.CircuitBreaker
	SummarizerBreaker *resilience.CircuitBreaker
}

// Orchestrator owns the dispatch queue and worker pool.
type Orchestrator struct {
	store      job.Store
	blobs      storage.Blobs
	stt        stt.Provider
	summarizer summarizer.Provider
	search     *search.Service
	metrics    *observe.Metrics

	queue         *Queue
	workers       int
	maxAudioBytes int64

	sttBreaker *resilience.CircuitBreaker
	sumBreaker *resilience.CircuitBreaker
}

// New creates an [Orchestrator] from cfg. Store and Blobs are required. STT
// and Summarizer may be nil for deployments that don't configure them; jobs
// needing the missing provider fail at stage entry instead of blocking
// startup.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("pipeline: blob storage is required")
	}

	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.STTBreaker == nil {
		cfg.STTBreaker = resilience.New(resilience.Config{Name: "stt"})
	}
	if cfg.SummarizerBreaker == nil {
		cfg.SummarizerBreaker = resilience.New(resilience.Config{Name: "summarizer"})
	}

	return &Orchestrator{
		store:         cfg.Store,
		blobs:         cfg.Blobs,
		stt:           cfg.STT,
		summarizer:    cfg.Summarizer,
		search:        cfg.Search,
		metrics:       cfg.Metrics,
		queue:         NewQueue(cfg.QueueCapacity),
		workers:       cfg.Workers,
		maxAudioBytes: cfg.MaxAudioBytes,
		sttBreaker:    cfg.STTBreaker,
		sumBreaker:    cfg.SummarizerBreaker,
	}, nil
}

// Submit hands a persisted job to the worker pool. The call returns as soon
// as the id is buffered; processing happens asynchronously.
func (o *Orchestrator) Submit(ctx context.Context, jobID string) error {
	if err := o.queue.Enqueue(ctx, jobID); err != nil {
		return fmt.Errorf("pipeline: enqueue %q: %w", jobID, err)
	}
	o.metrics.QueueDepth.Add(ctx, 1)
	return nil
}

// QueueDepth returns the number of jobs waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.Depth()
}

// Run performs the startup recovery sweep, then blocks processing jobs until
// ctx is cancelled. It always returns nil after a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.recover(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for range o.workers {
		g.Go(func() error {
			for {
				id, ok := o.queue.Dequeue(gctx)
				if !ok {
					return nil
				}
				o.metrics.QueueDepth.Add(gctx, -1)
				o.process(gctx, id)
			}
		})
	}
	err := g.Wait()
	o.queue.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline: workers: %w", err)
	}
	return nil
}

// Close stops the dispatch queue. Further Submit calls fail.
func (o *Orchestrator) Close() {
	o.queue.Close()
}

// recover re-enqueues every non-terminal job found in the store. Jobs
// interrupted by a previous crash resume from their persisted status.
func (o *Orchestrator) recover(ctx context.Context) {
	ids, err := o.store.ListUnfinished(ctx)
	if err != nil {
		observe.Logger(ctx).Error("recovery sweep failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	observe.Logger(ctx).Info("recovering unfinished jobs", "count", len(ids))
	for _, id := range ids {
		if err := o.Submit(ctx, id); err != nil {
			observe.Logger(ctx).Error("re-enqueue failed", "job_id", id, "error", err)
			return
		}
	}
}

// process drives one job from its current persisted status to a terminal
// state. Errors are persisted on the job, never returned: a worker must not
// die because one job failed.
func (o *Orchestrator) process(ctx context.Context, jobID string) {
	start := time.Now()
	o.metrics.ActiveJobs.Add(ctx, 1)
	defer o.metrics.ActiveJobs.Add(ctx, -1)

	log := observe.Logger(ctx).With("job_id", jobID)

	j, err := o.store.Get(ctx, jobID)
	if err != nil {
		log.Error("load job", "error", err)
		return
	}

	switch j.Status {
	case job.StatusPending:
		if j.Input.HasAudio() {
			if !o.transition(ctx, j, job.StatusPending, job.StatusTranscribing, job.Mutation{}) {
				return
			}
			o.transcribe(ctx, j, start)
			return
		}
		// Text-only jobs skip transcription entirely.
		if j.WantSummary {
			if !o.transition(ctx, j, job.StatusPending, job.StatusSummarizing, job.Mutation{}) {
				return
			}
			o.summarize(ctx, j, j.Input.Text, start)
			return
		}
		if o.transition(ctx, j, job.StatusPending, job.StatusComplete, job.Mutation{}) {
			o.complete(ctx, j, j.Input.Text, start)
		}

	case job.StatusTranscribing:
		// Recovered job; the stage restarts from the fetched audio.
		o.transcribe(ctx, j, start)

	case job.StatusSummarizing:
		o.summarize(ctx, j, j.BodyText(), start)

	default:
		// Terminal states are immutable; nothing to do.
		log.Debug("job already terminal", "status", j.Status)
	}
}

// transcribe runs the TRANSCRIBING stage: fetch, validate, call the STT
// provider through its breaker, persist the transcript, and either hand off
// to summarization or complete.
func (o *Orchestrator) transcribe(ctx context.Context, j *job.Job, start time.Time) {
	if o.stt == nil {
		o.fail(ctx, j, job.StatusTranscribing, "no speech-to-text provider configured", start)
		return
	}

	data, err := o.blobs.Fetch(ctx, j.Input.AudioURL, o.maxAudioBytes)
	if err != nil {
		o.fail(ctx, j, job.StatusTranscribing, fmt.Sprintf("fetch audio: %v", err), start)
		return
	}
	if err := ValidateAudio(data, o.maxAudioBytes); err != nil {
		o.fail(ctx, j, job.StatusTranscribing, err.Error(), start)
		return
	}
	format, _ := DetectFormat(data)

	var res *stt.Result
	sttStart := time.Now()
	err = o.sttBreaker.Execute(func() error {
		r, e := o.stt.Transcribe(ctx, data, stt.Options{
			Language: j.Language,
			MIMEType: mimeForFormat(format),
		})
		res = r
		return e
	})
	o.metrics.TranscribeDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "stt")
		o.fail(ctx, j, job.StatusTranscribing, fmt.Sprintf("transcription failed: %v", err), start)
		return
	}

	mut := job.Mutation{
		TranscriptText: &res.Text,
		Language:       &res.Language,
		Confidence:     &res.Confidence,
	}
	if j.WantSummary {
		if o.transition(ctx, j, job.StatusTranscribing, job.StatusSummarizing, mut) {
			o.summarize(ctx, j, res.Text, start)
		}
		return
	}
	if o.transition(ctx, j, job.StatusTranscribing, job.StatusComplete, mut) {
		o.complete(ctx, j, res.Text, start)
	}
}

// summarize runs the SUMMARIZING stage on text, which is the transcript for
// audio jobs and the literal input for text jobs.
func (o *Orchestrator) summarize(ctx context.Context, j *job.Job, text string, start time.Time) {
	if o.summarizer == nil {
		o.fail(ctx, j, job.StatusSummarizing, "no summarizer provider configured", start)
		return
	}

	var sum *summarizer.Summary
	sumStart := time.Now()
	err := o.sumBreaker.Execute(func() error {
		s, e := o.summarizer.Summarize(ctx, text)
		sum = s
		return e
	})
	o.metrics.SummarizeDuration.Record(ctx, time.Since(sumStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "summarizer")
		o.fail(ctx, j, job.StatusSummarizing, fmt.Sprintf("summarization failed: %v", err), start)
		return
	}

	mut := job.Mutation{Summary: &job.Summary{Model: sum.Model, Text: sum.Text}}
	if o.transition(ctx, j, job.StatusSummarizing, job.StatusComplete, mut) {
		o.complete(ctx, j, text, start)
	}
}

// transition persists a CAS status change. A conflict means another worker
// won the race or the job is already terminal; either way this worker stops.
func (o *Orchestrator) transition(ctx context.Context, j *job.Job, from, to job.Status, mut job.Mutation) bool {
	err := o.store.Transition(ctx, j.ID, from, to, mut)
	if err == nil {
		return true
	}
	log := observe.Logger(ctx).With("job_id", j.ID)
	if errors.Is(err, job.ErrConflict) {
		log.Debug("transition lost race", "from", from, "to", to)
	} else {
		log.Error("persist transition", "from", from, "to", to, "error", err)
	}
	return false
}

// fail moves the job to FAILED with the given message. The error text is
// what clients see when polling, so it names the stage without leaking
// internals beyond the provider error string.
func (o *Orchestrator) fail(ctx context.Context, j *job.Job, from job.Status, msg string, start time.Time) {
	if o.transition(ctx, j, from, job.StatusFailed, job.Mutation{Error: &msg}) {
		o.metrics.RecordJobFinished(ctx, string(job.StatusFailed))
		o.metrics.JobDuration.Record(ctx, time.Since(start).Seconds())
		observe.Logger(ctx).Warn("job failed", "job_id", j.ID, "stage", from, "error", msg)
	}
}

// complete records metrics for a job that reached COMPLETE and kicks off
// best-effort semantic indexing of its body text.
func (o *Orchestrator) complete(ctx context.Context, j *job.Job, text string, start time.Time) {
	o.metrics.RecordJobFinished(ctx, string(job.StatusComplete))
	o.metrics.JobDuration.Record(ctx, time.Since(start).Seconds())

	if o.search == nil || text == "" {
		return
	}
	if err := o.search.IndexTranscript(ctx, j.ID, j.SessionID, j.UserID, text, j.CreatedAt); err != nil {
		observe.Logger(ctx).Warn("semantic indexing failed", "job_id", j.ID, "error", err)
	}
}

// mimeForFormat maps a sniffed container format to the MIME type hint passed
// to STT providers.
func mimeForFormat(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "m4a":
		return "audio/mp4"
	case "webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
