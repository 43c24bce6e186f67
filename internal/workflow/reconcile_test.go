package workflow_test

import (
	"strings"
	"testing"

	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/submit"
	"direktori/internal/workflow"
)

func TestResolveMapsEveryOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result retry.Result
		status queue.Status
		note   string
	}{
		{"success", retry.Result{Outcome: submit.Success()}, queue.StatusDone, ""},
		{"already submitted", retry.Result{Outcome: submit.AlreadySubmitted()}, queue.StatusDone, queue.NoteAlreadySubmitted},
		{"approval", retry.Result{Outcome: submit.ApprovalInProgress()}, queue.StatusDone, queue.NoteApprovalInProgress},
		{"locked", retry.Result{Outcome: submit.LockedByOther()}, queue.StatusLocked, queue.NoteLockedByOther},
		{"infra exhausted", retry.Result{Outcome: submit.InfraIssue("dns"), Attempts: 2, Exhausted: true}, queue.StatusNew, "retry_timeout:dns"},
		{"infra not retried", retry.Result{Outcome: submit.InfraIssue("dns"), Attempts: 1}, queue.StatusNew, "dns"},
		{"infra interrupted", retry.Result{Outcome: submit.InfraIssue("interrupted: context canceled"), Attempts: 1, Interrupted: true}, queue.StatusNew, "interrupted: context canceled"},
		{"other", retry.Result{Outcome: submit.OtherError("bad input")}, queue.StatusFailed, "bad input"},
		{"other without detail", retry.Result{Outcome: submit.OtherError("")}, queue.StatusFailed, "submit failed without detail"},
		{"unknown kind", retry.Result{Outcome: submit.Outcome{Kind: submit.Kind(99)}}, queue.StatusFailed, "unknown submit outcome kind(99)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := workflow.Resolve(tt.result)
			if got.Status != tt.status || got.Note != tt.note {
				t.Fatalf("got %s/%q want %s/%q", got.Status, got.Note, tt.status, tt.note)
			}
		})
	}
}

func TestRetryTimeoutNoteTruncatesDetail(t *testing.T) {
	note := workflow.RetryTimeoutNote(strings.Repeat("x", 500))
	if !strings.HasPrefix(note, queue.NoteRetryTimeoutPrefix) {
		t.Fatalf("missing prefix: %q", note)
	}
	if len(note) != len(queue.NoteRetryTimeoutPrefix)+180 {
		t.Fatalf("expected detail capped at 180 chars, got %d", len(note)-len(queue.NoteRetryTimeoutPrefix))
	}
}
