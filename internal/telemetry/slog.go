package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel gates the default handler. A LevelVar so the config reload hook
// can change verbosity on a live server without rebuilding the handler.
var logLevel = new(slog.LevelVar)

// SetupLogger installs the process-wide logger from the logging config and
// makes it the slog default, so slog.Info/Warn/Error calls everywhere in the
// application use it without carrying a *slog.Logger around.
//
// format "json" selects the JSON handler used in deployed environments;
// anything else selects the human-readable text handler. output is "stderr"
// or "stdout" (the default). When service is non-empty every record carries
// it, so aggregated logs from several processes stay attributable.
func SetupLogger(format, level, output, service string) {
	logLevel.Set(ParseLevel(level))

	opts := &slog.HandlerOptions{
		Level: logLevel,
		// file:line resolution is not free; only pay for it when debugging.
		AddSource: logLevel.Level() == slog.LevelDebug,
	}

	var w io.Writer = os.Stdout
	if strings.EqualFold(output, "stderr") {
		w = os.Stderr
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	slog.Info("logger configured", "format", format, "level", logLevel.Level().String())
}

// SetLogLevel adjusts the active log level in place. Wired into the config
// reload hook so operators can raise verbosity without a restart.
func SetLogLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

// ParseLevel maps a configured level string to a slog level.
// Case-insensitive; unknown values fall back to info.
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
