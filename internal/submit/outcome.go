package submit

import "fmt"

// Kind classifies the result of one submit attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindAlreadySubmitted
	KindApprovalInProgress
	KindLockedByOther
	KindInfraIssue
	KindOtherError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAlreadySubmitted:
		return "already_submitted"
	case KindApprovalInProgress:
		return "approval_in_progress"
	case KindLockedByOther:
		return "locked_by_other"
	case KindInfraIssue:
		return "infra_issue"
	case KindOtherError:
		return "other_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the closed result variant returned by a Submitter. Detail is
// only meaningful for KindInfraIssue and KindOtherError.
type Outcome struct {
	Kind   Kind
	Detail string
}

func Success() Outcome            { return Outcome{Kind: KindSuccess} }
func AlreadySubmitted() Outcome   { return Outcome{Kind: KindAlreadySubmitted} }
func ApprovalInProgress() Outcome { return Outcome{Kind: KindApprovalInProgress} }
func LockedByOther() Outcome      { return Outcome{Kind: KindLockedByOther} }

// InfraIssue reports a transient failure (timeout, connectivity, session).
func InfraIssue(detail string) Outcome {
	return Outcome{Kind: KindInfraIssue, Detail: detail}
}

// OtherError reports a failure attributable to the row or the form.
func OtherError(detail string) Outcome {
	return Outcome{Kind: KindOtherError, Detail: detail}
}

// Errorf builds an OtherError from a format string.
func Errorf(format string, args ...any) Outcome {
	return OtherError(fmt.Sprintf(format, args...))
}

// Completed reports whether the item needs no further processing.
func (o Outcome) Completed() bool {
	switch o.Kind {
	case KindSuccess, KindAlreadySubmitted, KindApprovalInProgress:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Detail
}
