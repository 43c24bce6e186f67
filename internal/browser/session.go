package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"direktori/internal/config"
	"direktori/internal/logging"
	"direktori/internal/queue"
	"direktori/internal/submit"
)

const startupTimeout = 45 * time.Second

// Factory launches one browser per worker.
type Factory struct {
	cfg    config.Browser
	logger *slog.Logger
}

var _ submit.Factory = (*Factory)(nil)

// NewFactory returns a Factory for the configured registry session.
func NewFactory(cfg config.Browser, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Factory{cfg: cfg, logger: logging.NewComponentLogger(logger, "browser")}
}

// NewSubmitter starts Chrome, restores the recorded session cookies and
// returns a Session bound to workerID. The browser outlives ctx
// cancellation; it is torn down by Close.
func (f *Factory) NewSubmitter(ctx context.Context, workerID string) (submit.Submitter, error) {
	cookies, err := LoadStorageState(f.cfg.StorageState)
	if err != nil {
		return nil, err
	}
	logger := f.logger.With(logging.String(logging.FieldWorker, workerID))
	if expired := expiredCookies(cookies, time.Now()); len(expired) > 0 {
		logging.WarnWithContext(logger, "recorded session has expired cookies", "session_cookies_expired",
			logging.String("cookies", strings.Join(expired, ",")),
			logging.String(logging.FieldErrorHint, "re-record the storage state if submissions redirect to login"),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), f.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf("chromedp: "+format, args...))
		}),
	)
	s := &Session{
		cfg:      f.cfg,
		workerID: workerID,
		logger:   logger,
		browser:  browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	startCtx, cancel := context.WithTimeout(browserCtx, startupTimeout)
	defer cancel()
	err = chromedp.Run(startCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				if err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					WithExpires(c.Expires).
					Do(ctx); err != nil {
					return fmt.Errorf("restore cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser failed startup: %w", err)
	}
	logger.Info("browser session ready",
		logging.String(logging.FieldEventType, "browser_ready"),
		logging.Int("cookies", len(cookies)),
		logging.Bool("headless", f.cfg.Headless),
	)
	return s, nil
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", f.cfg.Locale),
		chromedp.WindowSize(f.cfg.WindowWidth, f.cfg.WindowHeight),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	if f.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ChromePath))
	}
	return opts
}

// Session is one worker's browser. Items are processed one at a time, each
// in a fresh tab.
type Session struct {
	cfg      config.Browser
	workerID string
	logger   *slog.Logger
	browser  context.Context

	closeOnce sync.Once
	cancel    func()
}

var _ submit.Submitter = (*Session)(nil)

// Submit runs the edit flow for item. Cancelling ctx closes the tab.
func (s *Session) Submit(ctx context.Context, item *queue.WorkItem) submit.Outcome {
	if item == nil {
		return submit.OtherError("nil work item")
	}
	tab, closeTab := chromedp.NewContext(s.browser)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	flow := &formFlow{
		cfg:     s.cfg,
		sel:     s.cfg.Selectors,
		timeout: time.Duration(s.cfg.TimeoutMS) * time.Millisecond,
		logger:  logging.WithContext(ctx, s.logger),
	}
	if err := chromedp.Run(tab, s.prepareTab()...); err != nil {
		return classify(infraf("prepare tab: %w", err))
	}
	outcome, err := flow.run(tab, item)
	if err != nil {
		if ctx.Err() != nil {
			return submit.InfraIssue("interrupted: " + ctx.Err().Error())
		}
		return classify(err)
	}
	return outcome
}

func (s *Session) prepareTab() []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, script := range []string{stealthJS, sameTabJS} {
				if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
					return err
				}
			}
			return nil
		}),
		chromedp.EmulateViewport(int64(s.cfg.WindowWidth), int64(s.cfg.WindowHeight)),
	}
	if s.cfg.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(s.cfg.Timezone))
	}
	if s.cfg.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(s.cfg.Locale))
	}
	return actions
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.logger.Debug("browser session closed")
	})
	return nil
}
