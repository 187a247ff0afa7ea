// Package main provides the API server entry point for the PinPinCloud backend.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pinpincloud/internal/api"
	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/config"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/ratelimit"
	"github.com/pinpincloud/internal/retry"
	"github.com/pinpincloud/internal/service"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/worker"
)

func main() {
	fmt.Println("PinPinCloud API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// The activity store is optional; without it admin stats omit daily uploads
	var activity service.ActivityRecorder
	if cfg.Database.ClickHouse.Enabled() {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		activity = storage.NewActivityRepository(clickhouse)
	} else {
		logger.Warn("ClickHouse not configured - activity log disabled")
	}

	logger.Info("Database connections established")

	blobs, err := blob.Open(ctx, &cfg.Blob)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open blob store")
	}

	broker := events.NewRedisBroker(redis.Client(), "pinpin:events:")
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	verifier, err := auth.NewVerifier([]byte(cfg.Auth.TokenSecret), cfg.Auth.Issuer)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create token verifier")
	}

	// Initialize repositories
	roleRepo := storage.NewRoleRepository(postgres)
	planRepo := storage.NewPlanRepository(postgres)
	fileRepo := storage.NewFileRepository(postgres)
	keyRepo := storage.NewKeyRepository(postgres)
	maintenanceRepo := storage.NewMaintenanceRepository(postgres)
	directoryRepo := storage.NewDirectoryRepository(postgres)
	orphanRepo := storage.NewOrphanRepository(postgres)

	cacheService := storage.NewCacheService(redis, cfg.Auth.RoleCacheTTL)

	// Initialize services
	logger.Info("Initializing services...")

	policy := &retry.RetryConfig{
		MaxRetries:   cfg.Download.MaxRetries,
		InitialDelay: cfg.Download.InitialDelay,
		Multiplier:   cfg.Download.Multiplier,
	}
	downloads := service.NewDownloadService(blobs, policy, cfg.Limits.MaxDownloadBytes, m)

	roleService := service.NewRoleService(roleRepo, storage.NewRoleCache(cacheService))
	planService := service.NewPlanService(planRepo)
	fileService := service.NewFileService(service.FileServiceConfig{
		Files:          fileRepo,
		Plans:          planService,
		Blobs:          blobs,
		Downloads:      downloads,
		Orphans:        orphanRepo,
		Activity:       activity,
		Publisher:      broker,
		Metrics:        m,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
	})
	shareService := service.NewShareService(fileRepo, downloads, activity, broker, m, cfg.Server.PublicOrigin)
	accountService := service.NewAccountService(roleService, planService, fileService, directoryRepo)
	keyService := service.NewKeyService(keyRepo, planService, activity, m)
	statsService := service.NewStatsService(fileRepo, planRepo, directoryRepo, keyRepo, activity, cacheService)
	maintenanceService := service.NewMaintenanceService(maintenanceRepo, broker)

	shareLimiter, err := ratelimit.NewWindowLimiter(&ratelimit.Config{
		Redis:  redis.Client(),
		Prefix: "pinpin:rl:",
		Limit:  cfg.RateLimit.ShareLimit,
		Window: cfg.RateLimit.ShareWindow,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create share rate limiter")
	}

	logger.Info("Services initialized")

	var janitor *worker.Janitor
	if cfg.Worker.Embedded {
		janitor, err = worker.NewJanitor(&worker.JanitorConfig{
			Orphans:    orphanRepo,
			Plans:      planRepo,
			Blobs:      blobs,
			Interval:   cfg.Worker.Interval,
			BatchSize:  cfg.Worker.OrphanBatchSize,
			MaxAttempt: cfg.Worker.OrphanMaxAttempt,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create janitor")
		}
		if err := janitor.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start janitor")
		}
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxUploadBytes:  cfg.Limits.MaxUploadBytes,
		FreeTierRPS:     cfg.RateLimit.FreeTier,
		PremiumTierRPS:  cfg.RateLimit.PremiumTier,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Verifier:     verifier,
		Accounts:     accountService,
		Files:        fileService,
		Shares:       shareService,
		Plans:        planService,
		Keys:         keyService,
		Stats:        statsService,
		Maintenance:  maintenanceService,
		Events:       broker,
		ShareLimiter: shareLimiter,
		Metrics:      m,
		Gatherer:     registry,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
		"blob": cfg.Blob.Backend,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if janitor != nil {
		if err := janitor.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Janitor did not stop cleanly")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
