// Package muxlog wires the core's five log severities onto log/slog, the
// way internal/logger does it in the teacher repo: a package-level logger,
// a text handler, and a short time format. Fatal logs at error level and
// then exits the process, matching spec.md §6's "fatal aborts the process".
package muxlog

import (
	"io"
	"log/slog"
	"os"
)

// Log is the package-level logger. Init replaces it; until Init is called
// it defaults to a plain stderr text handler at info level.
var Log = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init configures the package-level logger. level is one of
// "debug"/"info"/"warn"/"error" (anything else defaults to "info").
func Init(level string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})
	Log = slog.New(handler)
}

func Debug(msg string, args ...any) { Log.Debug(msg, args...) }
func Info(msg string, args ...any)  { Log.Info(msg, args...) }
func Warn(msg string, args ...any)  { Log.Warn(msg, args...) }
func Error(msg string, args ...any) { Log.Error(msg, args...) }

// Fatal logs at error level, then aborts the process. Per spec.md §6,
// "fatal aborts the process" — this is the only severity that does so.
func Fatal(msg string, args ...any) {
	Log.Error(msg, args...)
	os.Exit(1)
}
