package packdb

import (
	"log/slog"
	"os"
	"strings"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// and configures the log level based on the PACKDB_LOG_LEVEL environment variable.
// It defaults to Info level if not specified.
//
// Applications embedding the store call this at startup when they want the default
// logging configuration; the stores only ever log through slog's default logger.
func ConfigureLogging() {
	logLevel.Set(ParseLogLevel(os.Getenv("PACKDB_LOG_LEVEL")))

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// ParseLogLevel maps DEBUG, INFO, WARN and ERROR (any case) to a level, defaulting to Info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
