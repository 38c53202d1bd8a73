package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"chatsync/internal/config"
	"chatsync/pkg/logging"
)

func NewLogger(cfg config.Config) *slog.Logger {
	return New(os.Stdout, cfg)
}

func New(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     logging.ParseLevel(cfg.Logger.Level),
		AddSource: true,
	}
	var handler slog.Handler
	switch strings.ToUpper(cfg.Logger.Format) {
	case "TEXT":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("env", cfg.Service.Env),
		slog.Int("pid", os.Getpid()),
	)
	slog.SetDefault(logger)
	return logger
}
