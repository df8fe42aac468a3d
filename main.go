package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delta-trading-bot/config"
	"delta-trading-bot/internal/api"
	"delta-trading-bot/internal/auth"
	"delta-trading-bot/internal/bot"
	"delta-trading-bot/internal/database"
	"delta-trading-bot/internal/delta"
	"delta-trading-bot/internal/events"
	"delta-trading-bot/internal/lock"
	"delta-trading-bot/internal/logging"
	"delta-trading-bot/internal/scheduler"
	"delta-trading-bot/internal/vault"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}
	logger.Info("Database initialized")

	// Cycle lock: Redis when configured, in-process otherwise. A
	// single-instance deployment is correct either way; multiple
	// instances need Redis.
	var locker lock.Locker
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
		locker = lock.NewRedisLocker(redisClient, zl)
		logger.Info("Redis cycle lock initialized", "address", cfg.RedisConfig.Address)
	} else {
		locker = lock.NewMemoryLocker()
		logger.Info("In-memory cycle lock initialized")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Exchange credentials: Vault when enabled, env/file otherwise
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Vault client")
	}

	apiKey := cfg.DeltaConfig.APIKey
	secretKey := cfg.DeltaConfig.SecretKey
	if vaultClient.IsEnabled() {
		creds, err := vaultClient.GetCredentials(ctx, cfg.BaseStrategy.UserID)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load exchange credentials from Vault")
		}
		apiKey = creds.APIKey
		secretKey = creds.SecretKey
		logger.Info("Exchange credentials loaded from Vault")
	}

	deltaClient := delta.NewClient(apiKey, secretKey, cfg.DeltaConfig.BaseURL)
	logger.Info("Delta Exchange client initialized", "base_url", cfg.DeltaConfig.BaseURL)

	// Initialize trading bot
	tradingBot := bot.NewTradingBot(deltaClient, db, db, locker, eventBus, cfg.SchedulerConfig.LockTTL)

	// Initialize scheduler
	var sched *scheduler.Scheduler
	if cfg.SchedulerConfig.Enabled {
		sched = scheduler.New(tradingBot, db, cfg.SchedulerConfig)
		sched.Start()
		logger.Info("Scheduler started",
			"interval", cfg.SchedulerConfig.Interval.String(),
			"workers", cfg.SchedulerConfig.WorkerCount)
	}

	// Initialize auth service
	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(cfg.AuthConfig)
		logger.Info("Authentication enabled")
	}

	// Initialize API server
	server := api.NewServer(cfg.ServerConfig, cfg.BaseStrategy, db, eventBus, tradingBot, authService)
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	logger.Info("Trading bot started", "port", cfg.ServerConfig.Port)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	logger.Info("Shutdown complete")
}
