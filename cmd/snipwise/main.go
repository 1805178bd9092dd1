package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/snipwise/snipwise/internal/client"
	"github.com/snipwise/snipwise/internal/config"
	"github.com/snipwise/snipwise/internal/logging"
	"github.com/snipwise/snipwise/internal/version"
)

func main() {
	cfg, err := config.LoadClient(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	api, err := client.New(client.Options{BaseURL: cfg.BaseURL, AnonKey: cfg.AnonKey})
	if err != nil {
		logger.Fatalf("init client: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Config: cfg,
		Client: api,
		Logger: logrus.NewEntry(logger),
	})

	app := &cli.Command{
		Name:     "snipwise",
		Usage:    "Save code snippets and get them explained",
		Version:  version.Info(),
		Before:   runner.loadSession,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		if errors.Is(err, errExplainFailed) {
			os.Exit(1)
		}
		logger.Fatalf("%v", err)
	}
}
