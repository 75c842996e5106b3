// Package logging configures the zerolog logger shared by the server and
// provides a chi-compatible request logging middleware.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/driveclone/apiserver/config"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// New builds the process logger. Production defaults to JSON lines; other
// environments use the human-readable console writer.
func New(cfg config.Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Log.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if format == "" {
		format = "console"
		if cfg.IsProduction() {
			format = "json"
		}
	}

	writer := out
	if format == "console" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("env", cfg.Env).
		Logger()
}

// RequestLogger logs one line per request once the handler returns.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := logger.Info()
			switch {
			case status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request")
		})
	}
}
