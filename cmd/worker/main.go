// Package main provides the standalone janitor entry point for the PinPinCloud backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/config"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "Run a single janitor pass and exit")
	flag.Parse()

	fmt.Println("PinPinCloud Janitor")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	blobs, err := blob.Open(ctx, &cfg.Blob)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open blob store")
	}

	janitor, err := worker.NewJanitor(&worker.JanitorConfig{
		Orphans:    storage.NewOrphanRepository(postgres),
		Plans:      storage.NewPlanRepository(postgres),
		Blobs:      blobs,
		Interval:   cfg.Worker.Interval,
		BatchSize:  cfg.Worker.OrphanBatchSize,
		MaxAttempt: cfg.Worker.OrphanMaxAttempt,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create janitor")
	}

	if *once {
		result, err := janitor.RunOnce(ctx)
		fields := map[string]interface{}{
			"orphansDeleted":   result.OrphansDeleted,
			"orphansFailed":    result.OrphansFailed,
			"orphansAbandoned": result.OrphansAbandoned,
			"plansDowngraded":  result.PlansDowngraded,
			"usageReconciled":  result.UsageReconciled,
		}
		if err != nil {
			logger.WithFields(fields).WithError(err).Fatal("Janitor pass failed")
		}
		logger.WithFields(fields).Info("Janitor pass completed")
		return
	}

	if err := janitor.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start janitor")
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping janitor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := janitor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Error stopping janitor")
	}

	logger.Info("Janitor stopped. Goodbye!")
}
