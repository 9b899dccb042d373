package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"isites_migrator/internal/config"
	"isites_migrator/internal/publisher"
	"isites_migrator/internal/service"
)

// env is the state shared by every subcommand of one run.
type env struct {
	configPath string
	runID      string
	cfg        *config.Config
	logger     *slog.Logger
	events     service.Publisher
	closers    []func() error
}

func main() {
	e := &env{runID: uuid.NewString()}
	e.logger = setupLogger("info").With("run_id", e.runID)
	signalLogger := e.logger

	rootCmd := &cobra.Command{
		Use:           "isites-migrator",
		Short:         "Move iSites course files into Canvas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.init(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(newExportCmd(e), newImportCmd(e))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		signalLogger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	e.close()
	if err != nil {
		e.logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func (e *env) init(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.logger = setupLogger(cfg.LogLevel).With("run_id", e.runID, "command", cmd.Name())

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, e.logger)
		if err != nil {
			return err
		}
		e.events = rabbitMQ
		e.onClose(rabbitMQ.Close)
	}
	return nil
}

func (e *env) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("failed to release resource", "error", err)
		}
	}
	e.closers = nil
}

// oneSelection checks that exactly one selection mode was given.
func oneSelection(given ...bool) error {
	n := 0
	for _, g := range given {
		if g {
			n++
		}
	}
	switch {
	case n == 0:
		return service.ErrNoSelection
	case n > 1:
		return service.ErrConflictingSelection
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
