package job_test

import (
	"testing"

	"github.com/tobiasmeyr/memovox/internal/job"
)

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[job.Status][]job.Status{
		job.StatusPending:      {job.StatusTranscribing, job.StatusSummarizing, job.StatusComplete, job.StatusFailed},
		job.StatusTranscribing: {job.StatusSummarizing, job.StatusComplete, job.StatusFailed},
		job.StatusSummarizing:  {job.StatusComplete, job.StatusFailed},
		job.StatusComplete:     nil,
		job.StatusFailed:       nil,
	}

	all := []job.Status{
		job.StatusPending, job.StatusTranscribing, job.StatusSummarizing,
		job.StatusComplete, job.StatusFailed,
	}

	for from, nexts := range allowed {
		permitted := make(map[job.Status]bool, len(nexts))
		for _, n := range nexts {
			permitted[n] = true
		}
		for _, to := range all {
			if got := from.CanTransition(to); got != permitted[to] {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, permitted[to])
			}
		}
	}
}

func TestStatus_NoBackwardTransitions(t *testing.T) {
	t.Parallel()
	if job.StatusTranscribing.CanTransition(job.StatusPending) {
		t.Error("TRANSCRIBING -> PENDING must be forbidden")
	}
	if job.StatusSummarizing.CanTransition(job.StatusTranscribing) {
		t.Error("SUMMARIZING -> TRANSCRIBING must be forbidden")
	}
	if job.StatusComplete.CanTransition(job.StatusFailed) {
		t.Error("terminal states must not transition")
	}
	if job.StatusFailed.CanTransition(job.StatusComplete) {
		t.Error("terminal states must not transition")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status job.Status
		want   bool
	}{
		{job.StatusPending, false},
		{job.StatusTranscribing, false},
		{job.StatusSummarizing, false},
		{job.StatusComplete, true},
		{job.StatusFailed, true},
	}
	for _, tc := range tests {
		if got := tc.status.IsTerminal(); got != tc.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	t.Parallel()
	if !job.StatusPending.IsValid() {
		t.Error("PENDING should be valid")
	}
	if job.Status("QUEUED").IsValid() {
		t.Error("QUEUED should be invalid")
	}
}

func TestInput_Valid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   job.Input
		want bool
	}{
		{"audio only", job.Input{AudioURL: "s3://b/k.wav"}, true},
		{"text only", job.Input{Text: "buy milk"}, true},
		{"neither", job.Input{}, false},
		{"both", job.Input{AudioURL: "s3://b/k.wav", Text: "buy milk"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestJob_BodyText(t *testing.T) {
	t.Parallel()

	audioJob := &job.Job{
		Input:          job.Input{AudioURL: "s3://b/k.wav"},
		TranscriptText: "the transcribed words",
	}
	if got := audioJob.BodyText(); got != "the transcribed words" {
		t.Errorf("BodyText() = %q, want transcript", got)
	}

	textJob := &job.Job{Input: job.Input{Text: "typed memo"}}
	if got := textJob.BodyText(); got != "typed memo" {
		t.Errorf("BodyText() = %q, want input text", got)
	}
}

func TestNewID_Unique(t *testing.T) {
	t.Parallel()
	a, b := job.NewID(), job.NewID()
	if a == "" || a == b {
		t.Errorf("NewID() produced %q and %q", a, b)
	}
}
