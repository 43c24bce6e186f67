package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"direktori/internal/config"
)

const userAgent = "direktori/1.0"

// RunReport summarizes a finished run for the completion message.
type RunReport struct {
	Pool        string
	Processed   int
	Done        int
	Failed      int
	Locked      int
	Released    int
	Interrupted bool
	Duration    time.Duration
}

// Service is the notification surface used by the run command.
type Service interface {
	NotifyRunStarted(ctx context.Context, pool string, workers, pending int) error
	NotifyRunCompleted(ctx context.Context, report RunReport) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers messages.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, pool string, workers, pending int) error {
	data := payload{
		title:    "direktori - Run Started",
		message:  fmt.Sprintf("%s started %d workers with %d items waiting", strings.TrimSpace(pool), workers, pending),
		tags:     []string{"direktori", "run", "started"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, report RunReport) error {
	duration := report.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "direktori - Queue Drained"
	if report.Interrupted {
		title = "direktori - Run Interrupted"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s processed %d items in %s", strings.TrimSpace(report.Pool), report.Processed, duration)
	fmt.Fprintf(&b, "\ndone=%d failed=%d locked=%d released=%d", report.Done, report.Failed, report.Locked, report.Released)

	data := payload{
		title:   title,
		message: b.String(),
		tags:    []string{"direktori", "run", "completed"},
	}
	if report.Failed > 0 || report.Interrupted {
		data.tags = append(data.tags, "warning")
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "direktori - Error",
		message:  builder.String(),
		tags:     []string{"direktori", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "direktori - Test",
		message:  "Notification system test",
		tags:     []string{"direktori", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, RunReport) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
