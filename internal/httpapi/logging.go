package httpapi

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

// parseLevel reads a per-request level. Process logger names are accepted too:
// warn maps to error, fatal and panic to off.
func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "disabled", "fatal", "panic", "":
		return LevelOff
	case "error", "warn", "warning":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "trace", "all":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LevelFor returns the per-request level matching a process logger level.
// Events below the logger's level are dropped, so a request can only get
// debug output from a debug-level logger.
func LevelFor(l zerolog.Level) LogLevel {
	switch {
	case l <= zerolog.DebugLevel:
		return LevelDebug
	case l == zerolog.InfoLevel:
		return LevelInfo
	case l == zerolog.WarnLevel || l == zerolog.ErrorLevel:
		return LevelError
	default:
		return LevelOff
	}
}

// requestLogLevel resolves the level for one request: ?log= wins over
// X-Log-Level, and def applies when neither is set.
func requestLogLevel(r *http.Request, def LogLevel) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return def
}

// deltaLogWriter logs every relayed fragment. The relay issues one Write per
// fragment, so no line framing is needed.
type deltaLogWriter struct {
	log       zerolog.Logger
	requestID string
	n         int
}

func (lw *deltaLogWriter) Write(p []byte) (int, error) {
	lw.n++
	lw.log.Debug().Str("request_id", lw.requestID).Int("seq", lw.n).Str("delta", string(p)).Msg("generate>")
	return len(p), nil
}
