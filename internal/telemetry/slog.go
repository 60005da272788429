package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog logger from the logging section
// of the GroosHub config (format "json" or "text", level "debug" through
// "error", both case-insensitive; unknown levels fall back to "info").
//
// It may be called again at runtime: the config watcher re-invokes it when
// logging settings change on disk, and the new handler takes effect for every
// package logging through the slog default. Source locations are attached only
// at debug level to keep production JSON lines compact.
func SetupLogger(format, level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Text output for local development; containers run with json.
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}
