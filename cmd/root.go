package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatsync/internal/app/session"
	"chatsync/internal/config"
	"chatsync/internal/platform/logger"
	"chatsync/internal/platform/telemetry"
	"chatsync/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	log      *slog.Logger
	shutdown telemetry.ShutdownFunc
	deps     session.Deps
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(session.Deps{})
}

func newRootCmdWith(deps session.Deps) *cobra.Command {
	a := &app{v: config.NewViper(), deps: deps}
	rootCmd := &cobra.Command{
		Use:           "chatsync",
		Short:         "Headless realtime chat client",
		Long:          "chatsync keeps a push connection to the chat service open and mirrors conversations, timelines and participants into a local read-model cache.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "", "chat service base URL (env API_URL)")
	flags.String("token", "", "session bearer token (env SESSION_TOKEN)")
	flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR (env LOG_LEVEL)")
	flags.String("log-format", "", "JSON or TEXT (env LOG_FORMAT)")
	flags.String("otel-endpoint", "", "OTLP gRPC collector address (env OTEL_ENDPOINT)")
	flags.String("redis-url", "", "publish notifications to this redis (env REDIS_URL)")
	for key, name := range map[string]string{
		"API_URL":       "api-url",
		"SESSION_TOKEN": "token",
		"LOG_LEVEL":     "log-level",
		"LOG_FORMAT":    "log-format",
		"OTEL_ENDPOINT": "otel-endpoint",
		"REDIS_URL":     "redis-url",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newWatchCmd(a),
		newSendCmd(a),
		newConversationsCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.LoadFrom(a.v)
	a.log = logger.New(cmd.ErrOrStderr(), *a.cfg)

	shutdown, err := telemetry.InitTelemetry(cmd.Context(), *a.cfg)
	if err != nil {
		a.log.Error("cli - setup - telemetry init failed", logging.Err(err))
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) close() error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.log.Error("cli - close - telemetry shutdown failed", logging.Err(err))
	}
	return nil
}

func (a *app) newSession() (*session.Session, error) {
	s, err := session.New(a.log, a.cfg, a.deps)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}
