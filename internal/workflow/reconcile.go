package workflow

import (
	"context"
	"fmt"

	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/submit"
)

// retryNoteDetailLimit bounds the detail embedded in a retry_timeout note.
const retryNoteDetailLimit = 180

// Resolution is the single store update an outcome maps to.
type Resolution struct {
	Status queue.Status
	Note   string
}

// Resolve maps a submit result onto a reconciliation. Infrastructure issues
// always release the item. Only a result that used up its retries gets the
// retry_timeout note; otherwise the raw detail is kept.
func Resolve(res retry.Result) Resolution {
	out := res.Outcome
	switch out.Kind {
	case submit.KindSuccess:
		return Resolution{Status: queue.StatusDone}
	case submit.KindAlreadySubmitted:
		return Resolution{Status: queue.StatusDone, Note: queue.NoteAlreadySubmitted}
	case submit.KindApprovalInProgress:
		return Resolution{Status: queue.StatusDone, Note: queue.NoteApprovalInProgress}
	case submit.KindLockedByOther:
		return Resolution{Status: queue.StatusLocked, Note: queue.NoteLockedByOther}
	case submit.KindInfraIssue:
		if res.Exhausted {
			return Resolution{Status: queue.StatusNew, Note: RetryTimeoutNote(out.Detail)}
		}
		return Resolution{Status: queue.StatusNew, Note: queue.TruncateTo(out.Detail, retryNoteDetailLimit)}
	case submit.KindOtherError:
		return Resolution{Status: queue.StatusFailed, Note: otherErrorNote(out.Detail)}
	default:
		return Resolution{Status: queue.StatusFailed, Note: fmt.Sprintf("unknown submit outcome %s", out)}
	}
}

// RetryTimeoutNote formats the note stored when an item is released after
// infrastructure failures.
func RetryTimeoutNote(detail string) string {
	return queue.NoteRetryTimeoutPrefix + queue.TruncateTo(detail, retryNoteDetailLimit)
}

func otherErrorNote(detail string) string {
	if detail == "" {
		return "submit failed without detail"
	}
	return detail
}

// Apply performs the reconciler call for r.
func Apply(ctx context.Context, rec queue.Reconciler, id int64, r Resolution) error {
	switch r.Status {
	case queue.StatusDone:
		return rec.MarkDone(ctx, id, r.Note)
	case queue.StatusFailed:
		return rec.MarkFailed(ctx, id, r.Note)
	case queue.StatusLocked:
		return rec.MarkLocked(ctx, id, r.Note)
	case queue.StatusNew:
		return rec.ReleaseToNew(ctx, id, r.Note)
	default:
		return fmt.Errorf("reconcile item %d: %w: %q", id, queue.ErrInvalidStatus, r.Status)
	}
}
