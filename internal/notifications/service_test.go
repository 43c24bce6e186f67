package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"direktori/internal/config"
	"direktori/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(config.Notifications{})
	if notifications.Enabled(svc) {
		t.Fatal("expected disabled service")
	}
	if err := svc.NotifyRunCompleted(context.Background(), notifications.RunReport{Pool: "pc-01"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		got.body = string(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("topic rate limited"))
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "run started",
			send: func(s notifications.Service) error {
				return s.NotifyRunStarted(context.Background(), "pc-jakpus-01", 4, 1200)
			},
			expectTitle:    "direktori - Run Started",
			expectMessage:  "pc-jakpus-01 started 4 workers with 1200 items waiting",
			expectTags:     "direktori,run,started",
			expectPriority: "low",
		},
		{
			name: "run drained",
			send: func(s notifications.Service) error {
				return s.NotifyRunCompleted(context.Background(), notifications.RunReport{
					Pool: "pc-jakpus-01", Processed: 10, Done: 9, Locked: 1, Duration: 95 * time.Second,
				})
			},
			expectTitle:   "direktori - Queue Drained",
			expectMessage: "pc-jakpus-01 processed 10 items in 1m35s\ndone=9 failed=0 locked=1 released=0",
			expectTags:    "direktori,run,completed",
		},
		{
			name: "run interrupted with failures",
			send: func(s notifications.Service) error {
				return s.NotifyRunCompleted(context.Background(), notifications.RunReport{
					Pool: "pc-02", Processed: 3, Failed: 2, Released: 1, Interrupted: true,
				})
			},
			expectTitle:   "direktori - Run Interrupted",
			expectMessage: "pc-02 processed 3 items in 0s\ndone=0 failed=2 locked=0 released=1",
			expectTags:    "direktori,run,completed,warning",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("session expired"), "run pc-02")
			},
			expectTitle:    "direktori - Error",
			expectMessage:  "Error in run pc-02: session expired",
			expectTags:     "direktori,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t, http.StatusOK)
			svc := notifications.NewService(config.Notifications{NtfyTopic: server.URL, RequestTimeout: 5})
			if !notifications.Enabled(svc) {
				t.Fatal("expected enabled service")
			}
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusTooManyRequests)
	svc := notifications.NewService(config.Notifications{NtfyTopic: server.URL})
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected status error, got %v", err)
	}
}
