// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goxkit/mqactor"
	"github.com/goxkit/mqactor/internal/config"
	"github.com/goxkit/mqactor/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
)

type globalFlags struct {
	configPath string
	amqpURL    string
	queue      string
	routingKey string
	logLevel   string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "silo-worker",
		Short: "Run a reliable AMQP queue actor",
		Long: `silo-worker owns one queue actor: it declares the actor topology,
keeps the broker connection alive and consumes or publishes messages.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", ".", "Directory holding app.env")
	rootCmd.PersistentFlags().StringVarP(&flags.amqpURL, "url", "u", "", "Broker URL, overrides AMQP_URL")
	rootCmd.PersistentFlags().StringVarP(&flags.queue, "queue", "q", "", "Actor queue, overrides MQ_QUEUE")
	rootCmd.PersistentFlags().StringVarP(&flags.routingKey, "key", "k", "", "Actor routing key, overrides MQ_ROUTING_KEY")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level, overrides LOG_LEVEL")

	rootCmd.AddCommand(
		newConsumeCmd(&flags),
		newPublishCmd(&flags),
		newHealthCmd(&flags),
	)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("silo-worker failed")
		os.Exit(1)
	}
}

// load reads the configuration and applies the command line overrides.
func (f *globalFlags) load() (config.Config, *logrus.Entry, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f.amqpURL != "" {
		cfg.AMQPURL = f.amqpURL
	}
	if f.queue != "" {
		cfg.Queue = f.queue
	}
	if f.routingKey != "" {
		cfg.RoutingKey = f.routingKey
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	log := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.AppName)
	return cfg, log, nil
}

// connect builds the supervisor and opens the first connection.
func connect(ctx context.Context, cfg config.Config, log *logrus.Entry) (*mqactor.Supervisor, error) {
	opts := append(cfg.ActorOptions(),
		mqactor.WithLogger(log),
		mqactor.WithErrorReporter(mqactor.NewTelemetryReporter()),
	)

	sup, err := mqactor.NewSupervisor(cfg.Actor(), opts...)
	if err != nil {
		return nil, err
	}

	if err := sup.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return sup, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
