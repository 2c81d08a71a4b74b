package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pdl/orcastream/internal/platform/correlation"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
// file: when non-empty, logs are also written to a size-rotated file at this path
func InitLogger(level, format, file string) {
	Logger = slog.New(NewHandler(level, format, output(file)))
	slog.SetDefault(Logger)
}

// NewHandler builds the correlation-aware handler InitLogger installs.
func NewHandler(level, format string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return correlation.NewHandler(handler)
}

// ParseLevel maps a level name to its slog level, falling back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func output(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotating)
}
