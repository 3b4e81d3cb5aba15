package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fastprodman/sealedrps/internal/config"
)

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	slog.SetDefault(NewJSON(os.Stdout, level))
}

// NewJSON returns a JSON logger writing to w.
func NewJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
	)
}

// Setup installs the default logger described by cfg. With a log file
// configured, lines go to stdout and to a rotating file. The returned
// closer releases the file and is a no-op otherwise.
func Setup(cfg config.LogConfig) io.Closer {
	if cfg.File == "" {
		SetupJSON(cfg.Level)

		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	slog.SetDefault(NewJSON(io.MultiWriter(os.Stdout, file), cfg.Level))

	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
