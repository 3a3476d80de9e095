package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configuration level string onto a slog.Level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w.
//
// format: "json"  → JSONHandler (machine readable, for log shippers)
//
//	anything else → TextHandler (human readable)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger installs the default slog logger from the configured format and level.
//
// Logs go to stderr: stdout belongs to command output (tables, CSV, JSON) so it
// can be piped without log lines mixed in.
func SetupLogger(format, level string) {
	slog.SetDefault(NewLogger(os.Stderr, format, level))
	slog.Debug("logger initialised", "format", format, "level", ParseLevel(level).String())
}
