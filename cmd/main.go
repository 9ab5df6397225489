/**
 * @description
 * This is the main entry point for the deal-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the ledger gateway client, message brokers, the deadline scheduler,
 * the audit layer, the core coordinator, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/audit, internal/config, internal/scheduler,
 *   internal/store: Internal packages for the service.
 * - pkg/ledgerclient: Client for the escrow ledger gateway.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/api"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/app"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/audit"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/config"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/scheduler"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/store"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/ledgerclient"
	rmrabbit "github.com/Geekz-Wit-Attitudes/etharis-sub000/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.LedgerGatewayURL) == "" {
		logger.Error("ledger gateway url must be configured", "env", "LEDGER_GATEWAY_URL")
		os.Exit(1)
	}

	logger.Info("starting deal-service", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Initialize the RabbitMQ producer to publish deal lifecycle events.
	// This service only publishes; there is no consumer side.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; events disabled", "error", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		logger.Info("rabbitmq producer connected")
	}

	// Initialize the client for the escrow ledger gateway.
	ledgerClient := ledgerclient.NewClient(cfg.LedgerGatewayURL, cfg.LedgerGatewayAPIKey)

	// Redis backs the distributed rate limiter; a missing or unreachable Redis
	// degrades to unlimited rather than blocking boot.
	var redisClient *redis.Client
	rateLimitingEnabled := cfg.DealCreateRateLimitPerMinute > 0 || cfg.DisputeRateLimitPerMinute > 0
	if rateLimitingEnabled {
		if cfg.RedisURL == "" {
			logger.Warn("redis url missing; rate limiting disabled", "env", "REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				logger.Warn("redis url parse failed; rate limiting disabled", "error", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					logger.Warn("redis ping failed; rate limiting disabled", "error", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					logger.Info("redis connected")
				}
			}
		}
	}

	// Initialize the data access layer, audit service, and deadline scheduler.
	repository := store.NewPostgresRepository(dbpool)
	auditService := audit.NewService(repository, logger.With("component", "audit"))
	dealScheduler := scheduler.New(logger.With("component", "scheduler"))
	defer dealScheduler.Shutdown()

	// Initialize the core coordinator with its dependencies.
	dealService := app.NewService(
		ledgerClient,
		auditService,
		dealScheduler,
		producer,
		logger.With("component", "coordinator"),
		cfg.DealEventExchange,
	)
	if redisClient != nil {
		dealService.SetRateLimiter(
			app.NewRedisDealRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.DealCreateRateLimitPerMinute,
			cfg.DisputeRateLimitPerMinute,
		)
	}

	// Rebuild the timer registry from durable state, then keep it converged.
	reconciler := app.NewReconciler(dealService, repository, logger.With("component", "reconciler"))
	reconcileCron, err := reconciler.StartCron(context.Background(), cfg.ReconcileSchedule)
	if err != nil {
		logger.Error("reconciliation scheduling failed", "error", err)
		os.Exit(1)
	}
	defer reconcileCron.Stop()

	// Initialize the API handlers.
	dealHandlers := api.NewDealHandlers(dealService, auditService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.DealRoutes(dealHandlers, cfg.JWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.Info("server listening", "addr", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
}
