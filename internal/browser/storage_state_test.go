package browser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

const sampleState = `{
  "cookies": [
    {"name": "laravel_session", "value": "abc", "domain": "matchapro.web.bps.go.id", "path": "/", "expires": 1893456000.5, "httpOnly": true, "secure": true, "sameSite": "Lax"},
    {"name": "XSRF-TOKEN", "value": "tok", "domain": "matchapro.web.bps.go.id", "path": "", "expires": -1, "httpOnly": false, "secure": true, "sameSite": "None"},
    {"name": "", "value": "ignored"}
  ],
  "origins": [{"origin": "https://matchapro.web.bps.go.id", "localStorage": []}]
}`

func TestParseStorageState(t *testing.T) {
	cookies, err := parseStorageState([]byte(sampleState))
	if err != nil {
		t.Fatalf("parseStorageState: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	session := cookies[0]
	if session.Name != "laravel_session" || !session.HTTPOnly || !session.Secure {
		t.Fatalf("unexpected session cookie: %+v", session)
	}
	if session.SameSite != network.CookieSameSiteLax {
		t.Fatalf("unexpected same-site %q", session.SameSite)
	}
	if session.Expires == nil || session.Expires.Time().Unix() != 1893456000 {
		t.Fatalf("unexpected expiry: %v", session.Expires)
	}
	xsrf := cookies[1]
	if xsrf.Expires != nil {
		t.Fatalf("session cookie should have no expiry, got %v", xsrf.Expires.Time())
	}
	if xsrf.Path != "/" {
		t.Fatalf("expected default path, got %q", xsrf.Path)
	}
	if xsrf.SameSite != network.CookieSameSiteNone {
		t.Fatalf("unexpected same-site %q", xsrf.SameSite)
	}
}

func TestParseStorageStateRejectsEmptyAndMalformed(t *testing.T) {
	if _, err := parseStorageState([]byte(`{"cookies": []}`)); !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}
	if _, err := parseStorageState([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadStorageStateMissingFile(t *testing.T) {
	_, err := LoadStorageState(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestExpiredCookies(t *testing.T) {
	cookies, err := parseStorageState([]byte(sampleState))
	if err != nil {
		t.Fatalf("parseStorageState: %v", err)
	}
	if names := expiredCookies(cookies, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); len(names) != 0 {
		t.Fatalf("expected no expired cookies, got %v", names)
	}
	names := expiredCookies(cookies, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	if len(names) != 1 || names[0] != "laravel_session" {
		t.Fatalf("unexpected expired cookies: %v", names)
	}
}
