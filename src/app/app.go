package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethaccount/sponsorop/src/handler"
	"github.com/ethaccount/sponsorop/src/repository"
	"github.com/ethaccount/sponsorop/src/service"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/rs/zerolog"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Application struct {
	config            AppConfig
	database          *gorm.DB
	healthDB          *sql.DB
	redis             *redis.Client
	BlockchainService *service.BlockchainService
	UserOpService     *service.UserOpService
	RelayQueue        *repository.RelayQueueRepository
	RelayWorker       *service.RelayWorker
	ReceiptPoller     *service.ReceiptPoller
}

func NewApplication(ctx context.Context, config AppConfig) (*Application, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewApplication").Logger()

	// Connect to Redis
	redisOpts, err := redis.ParseURL(*config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)

	// Test Redis connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connection to redis failed: %w", err)
	}
	logger.Info().Msg("Redis connection established")

	// Connect to database
	database, err := gorm.Open(postgresDriver.Open(*config.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	// Test database connection
	db, err := database.DB()
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to get underlying database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("connection to database failed: %w", err)
	}

	logger.Info().Msg("Database connection established")

	// dedicated connection for health checks
	healthDB, err := sql.Open("postgres", *config.DSN)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to open health check connection: %w", err)
	}
	healthDB.SetMaxOpenConns(1)

	app := &Application{
		config:   config,
		database: database,
		healthDB: healthDB,
		redis:    rdb,
	}

	// run migration files
	if err := MigrationUp(*config.DSN, *config.MigrationPath); err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	logger.Info().Str("path", *config.MigrationPath).Msg("Database migrated")

	defaults, err := LoadDefaults(*config.DefaultsPath)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}

	operationRepo := repository.NewSignedOperationRepository(database)
	app.RelayQueue = repository.NewRelayQueueRepository(rdb, *config.RelayQueue)

	app.BlockchainService = service.NewBlockchainService(service.BlockchainConfig{
		SepoliaRPCURL:         *config.SepoliaRPCURL,
		ArbitrumSepoliaRPCURL: *config.ArbitrumSepoliaRPCURL,
		BaseSepoliaRPCURL:     *config.BaseSepoliaRPCURL,
		OptimismSepoliaRPCURL: *config.OptimismSepoliaRPCURL,
		PolygonAmoyRPCURL:     *config.PolygonAmoyRPCURL,
	})

	app.UserOpService, err = service.NewUserOpService(operationRepo, app.RelayQueue, app.BlockchainService, service.UserOpConfig{
		EntryPoint: *config.EntryPoint,
		ChainID:    *config.ChainID,
		PrivateKey: *config.PrivateKey,
		Defaults:   defaults,
	})
	if err != nil {
		app.Shutdown(ctx)
		return nil, fmt.Errorf("creation of userop service failed: %w", err)
	}

	logger.Info().
		Str("signer", app.UserOpService.Signer().Hex()).
		Str("entry_point", config.EntryPoint.Hex()).
		Int64("chain_id", *config.ChainID).
		Msg("Signing key loaded")

	app.RelayWorker = service.NewRelayWorker(ctx, operationRepo, app.RelayQueue, app.BlockchainService, service.RelayWorkerConfig{
		MaxAttempts: *config.RelayMaxAttempts,
	})

	app.ReceiptPoller = service.NewReceiptPoller(operationRepo, app.BlockchainService, service.PollingConfig{
		PollingInterval: time.Duration(*config.PollingInterval) * time.Second,
	})

	return app, nil
}

func (app *Application) Shutdown(ctx context.Context) {
	logger := zerolog.Ctx(ctx).With().Str("function", "Shutdown").Logger()

	if app.BlockchainService != nil {
		app.BlockchainService.Close()
		logger.Info().Msg("Blockchain clients closed")
	}

	// Close database connection
	if app.database != nil {
		db, err := app.database.DB()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to get underlying database connection")
		} else {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close database connection")
			} else {
				logger.Info().Msg("Database connection closed")
			}
		}
	}

	if app.healthDB != nil {
		if err := app.healthDB.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close health check connection")
		}
	}

	// Close Redis connection
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close redis connection")
		} else {
			logger.Info().Msg("Redis connection closed")
		}
	}
}

func (app *Application) healthHandler() *handler.HealthHandler {
	return handler.NewHealthHandler(map[string]handler.PingFunc{
		"database": app.healthDB.PingContext,
		"redis": func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		},
	})
}

func (app *Application) RunHTTPServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunHTTPServer").Logger()

	// Set to release mode to disable Gin logger
	gin.SetMode(gin.ReleaseMode)

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())

	// Register routes
	handler.RegisterRoutes(ctx, ginRouter, handler.RouterConfig{
		UserOpService: app.UserOpService,
		Health:        app.healthHandler(),
		APISecret:     *app.config.APISecret,
		AllowOrigins:  *app.config.AllowOrigins,
	})

	// Build HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", *app.config.Port),
		Handler:           ginRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		zerolog.Ctx(ctx).Info().Msgf("HTTP server is on http://localhost:%s/api/v1/health", *app.config.Port)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			zerolog.Ctx(ctx).Panic().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	logger.Info().Msg("Gracefully shutting down HTTP server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown HTTP server gracefully")
	} else {
		logger.Info().Msg("HTTP server shutdown complete")
	}
}

func (app *Application) RunRelayWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunRelayWorker").Logger()
	logger.Info().Msg("Starting relay worker")

	app.RelayWorker.Start()

	<-ctx.Done()
	logger.Info().Msg("Stopping relay worker...")

	app.RelayWorker.Stop()

	logger.Info().Msg("Relay worker stopped")
}

func (app *Application) RunReceiptPoller(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunReceiptPoller").Logger()
	logger.Info().Msg("Starting receipt poller")

	err := app.ReceiptPoller.Start(ctx)
	logStopError(&logger, "receipt poller", err)

	logger.Info().Msg("Receipt poller stopped")
}

// logStopError reports a loop that returned for any reason other than its
// context being cancelled.
func logStopError(logger *zerolog.Logger, name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	logger.Error().Err(err).Str("component", name).Msg("stopped unexpectedly")
}

// RunQueueStatsLogger logs relay queue statistics periodically
func (app *Application) RunQueueStatsLogger(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	defer wg.Done()

	logger := zerolog.Ctx(ctx).With().Str("function", "RunQueueStatsLogger").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := app.RelayQueue.Statistics(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to read relay queue statistics")
				continue
			}
			logger.Info().
				Int64("queued", stats.Queued).
				Int("pending", stats.PendingCount).
				Int("failed", stats.FailedCount).
				Int("completed", stats.CompletedCount).
				Msg("Relay queue stats")
		}
	}
}
