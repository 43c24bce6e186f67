package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			default:
				return redactAttr(attr)
			}
			return attr
		},
	}
	return slog.NewJSONHandler(w, &opts)
}

// redactAttr masks secrets that can reach log lines through config dumps
// or driver errors.
func redactAttr(attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	switch {
	case strings.Contains(key, "password"), strings.Contains(key, "token"), strings.Contains(key, "secret"):
		return slog.String(attr.Key, "[REDACTED]")
	case key == FieldDatabaseURL:
		return slog.String(attr.Key, RedactURL(attr.Value.String()))
	}
	return attr
}

const redactedPassword = "xxxxx"

// dsnPassword matches password=value in keyword/value DSNs and URL query
// strings. Quoted values may contain spaces and escaped quotes.
var dsnPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|[^\s&]+)`)

// RedactURL masks the password in a connection string, in URL userinfo, a
// password query parameter or a keyword/value DSN.
func RedactURL(raw string) string {
	out := raw
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redactedPassword)
			out = u.String()
		}
	}
	return dsnPassword.ReplaceAllString(out, "${1}"+redactedPassword)
}
