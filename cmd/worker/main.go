package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/toolsascode/arcade/internal/app"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(false); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Check if queue is enabled
	if !cfg.Queue.Enabled {
		logger.Fatalf("Queue is not enabled. Set ARCADE_QUEUE_ENABLED=true to use the worker")
	}
	if strings.EqualFold(cfg.Queue.Type, "memory") {
		logger.Fatalf("The memory queue only works inside the server process; use kafka or pulsar for a separate worker")
	}

	a, err := app.New(context.Background(), cfg, app.WithQueue())
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("Error during shutdown: %v", err)
		}
	}()

	w := worker.NewWorker(a, a.Queue)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Worker error: %v", err)
		}
	}()

	logger.Infof("Migration worker started (%s). Press Ctrl+C to stop.", cfg.Queue.Type)

	select {
	case <-sigChan:
		logger.Info("Shutting down worker...")
	case <-done:
	}

	// Consume returns once ctx is cancelled; the queue is closed with the app.
	cancel()
	<-done

	logger.Info("Worker stopped")
}
