package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"direktori/internal/browser"
	"direktori/internal/deps"
)

const registryTimeout = 10 * time.Second

// CheckDatabase pings the queue store.
func CheckDatabase(ctx context.Context, driver string, db Pinger, timeout time.Duration) Result {
	name := "Queue database (" + driver + ")"
	if db == nil {
		return Result{Name: name, Detail: "store not opened"}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.Ping(checkCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Name: name, Detail: "ping timed out"}
		}
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStorageState verifies the recorded session file is readable and
// carries at least one cookie.
func CheckStorageState(path string) Result {
	const name = "Session storage state"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "browser.storage_state not configured"}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v; record a login session first)", path, err)}
	}
	cookies, err := browser.LoadStorageState(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d cookies)", path, len(cookies))}
}

// CheckChrome verifies a Chrome or Chromium binary is available.
func CheckChrome(configured string) Result {
	status := deps.CheckChrome(configured)
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	return Result{Name: status.Name, Passed: true, Detail: status.Command}
}

// CheckRegistry verifies the registry web application answers HTTP. Any
// response below 500 counts, including login redirects.
func CheckRegistry(ctx context.Context, baseURL string) Result {
	const name = "Registry web application"

	base := strings.TrimSpace(baseURL)
	if base == "" {
		return Result{Name: name, Detail: "browser.base_url not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	client := &http.Client{
		Timeout: registryTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d)", resp.StatusCode)}
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
