package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// storageState is the session file written by the login recorder.
type storageState struct {
	Cookies []storedCookie `json:"cookies"`
}

type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// ErrEmptySession means the storage state file holds no cookies.
var ErrEmptySession = errors.New("storage state has no cookies")

// LoadStorageState reads a recorded session and returns the cookies to inject.
func LoadStorageState(path string) ([]*network.CookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage state: %w", err)
	}
	return parseStorageState(data)
}

func parseStorageState(data []byte) ([]*network.CookieParam, error) {
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode storage state: %w", err)
	}
	cookies := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: sameSite(c.SameSite),
		}
		if param.Path == "" {
			param.Path = "/"
		}
		// Session cookies are stored with expires -1.
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)).UTC())
			param.Expires = &expires
		}
		cookies = append(cookies, param)
	}
	if len(cookies) == 0 {
		return nil, ErrEmptySession
	}
	return cookies, nil
}

func sameSite(value string) network.CookieSameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return network.CookieSameSiteStrict
	case "none":
		return network.CookieSameSiteNone
	case "lax":
		return network.CookieSameSiteLax
	default:
		return ""
	}
}

// expiredCookies returns the names of cookies whose expiry is before now.
func expiredCookies(cookies []*network.CookieParam, now time.Time) []string {
	var names []string
	for _, c := range cookies {
		if c.Expires == nil {
			continue
		}
		if c.Expires.Time().Before(now) {
			names = append(names, c.Name)
		}
	}
	return names
}
