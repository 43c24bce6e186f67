package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"direktori/internal/submit"
)

// ErrSessionExpired means the registry redirected to its login page.
var ErrSessionExpired = errors.New("session expired, re-record storage state")

// infraError marks a failure as transient so the item is retried.
type infraError struct {
	err error
}

func (e *infraError) Error() string { return e.err.Error() }
func (e *infraError) Unwrap() error { return e.err }

func infraf(format string, args ...any) error {
	return &infraError{err: fmt.Errorf(format, args...)}
}

// transientMarkers are substrings of Chrome and devtools errors that point
// at the network or the browser rather than the item.
var transientMarkers = []string{
	"net::err_",
	"page load error",
	"websocket",
	"could not dial",
	"connection refused",
	"connection reset",
	"target closed",
	"execution context was destroyed",
	"timeout",
}

// classify maps a form flow error to a submit outcome.
func classify(err error) submit.Outcome {
	if err == nil {
		return submit.Success()
	}
	var infra *infraError
	switch {
	case errors.As(err, &infra):
		return submit.InfraIssue(err.Error())
	case errors.Is(err, ErrSessionExpired):
		return submit.InfraIssue(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return submit.InfraIssue("timeout: " + err.Error())
	case errors.Is(err, context.Canceled):
		return submit.InfraIssue("interrupted: " + err.Error())
	case errors.Is(err, chromedp.ErrInvalidContext), errors.Is(err, chromedp.ErrInvalidTarget),
		errors.Is(err, chromedp.ErrChannelClosed):
		return submit.InfraIssue("browser unavailable: " + err.Error())
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return submit.InfraIssue(err.Error())
		}
	}
	return submit.OtherError(err.Error())
}
