// Package job defines the transcript job entity and its persistence
// contract.
//
// A Job tracks one voice-memo submission through the processing pipeline:
// created PENDING by the submission API, advanced by the pipeline through
// TRANSCRIBING and SUMMARIZING, and finished in COMPLETE or FAILED. The
// client-supplied idempotency key makes creation at-most-once; the status
// state machine makes every later mutation a compare-and-set transition, so
// a concurrent status read always observes a consistent, monotonically
// advancing job.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a job. Transitions are one-directional;
// see [Status.CanTransition].
type Status string

const (
	// StatusPending means the job is created but processing has not started.
	StatusPending Status = "PENDING"

	// StatusTranscribing means the audio payload is being transcribed.
	StatusTranscribing Status = "TRANSCRIBING"

	// StatusSummarizing means the transcript is being summarized.
	StatusSummarizing Status = "SUMMARIZING"

	// StatusComplete is the successful terminal state.
	StatusComplete Status = "COMPLETE"

	// StatusFailed is the unsuccessful terminal state; Job.Error explains why.
	StatusFailed Status = "FAILED"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusTranscribing, StatusSummarizing, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is a terminal state. Terminal jobs are never
// mutated again.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// CanTransition reports whether the state machine permits moving from s to
// next. The permitted edges are:
//
//	PENDING      → TRANSCRIBING | SUMMARIZING | COMPLETE | FAILED
//	TRANSCRIBING → SUMMARIZING | COMPLETE | FAILED
//	SUMMARIZING  → COMPLETE | FAILED
//
// PENDING→SUMMARIZING and PENDING→COMPLETE cover text-only submissions,
// which skip the transcription stage entirely. PENDING→FAILED covers audio
// references that cannot be fetched or validated.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusTranscribing || next == StatusSummarizing ||
			next == StatusComplete || next == StatusFailed
	case StatusTranscribing:
		return next == StatusSummarizing || next == StatusComplete || next == StatusFailed
	case StatusSummarizing:
		return next == StatusComplete || next == StatusFailed
	default:
		return false
	}
}

// Input is the tagged union of job inputs: exactly one of AudioURL or Text
// is set. The submission API enforces the exactly-one constraint before a
// job is created.
type Input struct {
	// AudioURL is an opaque locator for the uploaded audio payload,
	// resolvable by the storage layer. Empty for text submissions.
	AudioURL string

	// Text is the literal memo text for submissions that skip audio capture.
	// Empty for audio submissions.
	Text string
}

// HasAudio reports whether the input references an audio payload.
func (in Input) HasAudio() bool { return in.AudioURL != "" }

// Valid reports whether exactly one of the two input variants is set.
func (in Input) Valid() bool {
	return (in.AudioURL != "") != (in.Text != "")
}

// Summary is the optional LLM summary attached to a job once summarization
// succeeds.
type Summary struct {
	// Model is the identifier of the model that produced the summary.
	Model string

	// Text is the summary itself.
	Text string
}

// Job is one transcription/summarization request tracked through the
// pipeline. Mutated exclusively by the pipeline after creation; never
// deleted by the core.
type Job struct {
	ID        string
	SessionID string
	UserID    string

	// IdempotencyKey is the client-chosen token that makes submission
	// at-most-once. Globally unique.
	IdempotencyKey string

	Input       Input
	WantSummary bool
	Status      Status

	// Language is the recognition hint supplied at submission, replaced by
	// the detected language once transcription succeeds.
	Language string

	// TranscriptText and Confidence are populated once transcription
	// succeeds. For text submissions TranscriptText stays empty — the memo
	// text lives in Input.Text and no transcription stage runs.
	TranscriptText string
	Confidence     float64

	// Summary is populated only when the submission requested one and the
	// summarization stage succeeded.
	Summary *Summary

	// Error is the human-readable failure reason; set only in FAILED.
	Error string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BodyText returns the text the summarization stage should operate on: the
// transcript when an audio stage ran, otherwise the literal input text.
func (j *Job) BodyText() string {
	if j.TranscriptText != "" {
		return j.TranscriptText
	}
	return j.Input.Text
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}
