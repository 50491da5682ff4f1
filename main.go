package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"biscuit-backend/catalog"
	"biscuit-backend/checkout"
	"biscuit-backend/config"
	"biscuit-backend/database"
	"biscuit-backend/metrics"
	"biscuit-backend/middleware"
	"biscuit-backend/models"
	"biscuit-backend/payment"
	"biscuit-backend/routes"
	"biscuit-backend/session"
	"biscuit-backend/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func main() {
	// Load environment variables
	_ = config.LoadEnv()

	logger := utils.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	// Validate critical environment variables
	if err := config.ValidateEnv(); err != nil {
		logger.Fatal().Err(err).Msg("environment validation failed")
	}

	ctx := context.Background()

	provider, err := metrics.Init(ctx, metrics.Config{
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Headers:        os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		Insecure:       config.GetEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:    config.GetEnv("OTEL_SERVICE_NAME", "biscuit-backend"),
		ServiceVersion: version,
		Environment:    config.GetEnv("ENV_MODE", config.ModeSandbox),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("metrics export disabled")
	}

	// Initialize database
	db, err := database.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Run migrations
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	if config.GetEnvBool("SEED_CATALOG", false) {
		if err := database.SeedDemoCatalog(db); err != nil {
			logger.Warn().Err(err).Msg("could not seed demo catalog")
		}
	}

	// Sessions and provider tokens live in Redis when configured so that
	// several instances can serve the same visitors.
	rdb, err := database.ConnectRedis(ctx, os.Getenv("REDIS_URL"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	var sessions session.Store = session.NewMemoryStore()
	var tokens payment.TokenCache = payment.NewMemoryTokenCache()
	if rdb != nil {
		sessions = session.NewRedisStore(rdb, "session:")
		tokens = payment.NewRedisTokenCache(rdb)
	}

	if err := utils.RegisterValidators(); err != nil {
		logger.Fatal().Err(err).Msg("failed to register validators")
	}

	port := config.GetEnv("PORT", "8080")
	baseURL := strings.TrimRight(config.GetEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/")

	store := payment.NewStatusStore(db, utils.NewOrderMailer(logger), logger)
	registry := payment.NewRegistry()
	registry.Register(payment.NewMvolaService(config.LoadMvolaConfig(), store, tokens,
		payment.WithLogger(logger)), models.PaymentMethodMvola)
	registry.Register(payment.NewPaypalService(config.LoadPaypalConfig(), store, logger),
		models.PaymentMethodPaypal, models.PaymentMethodCard)

	cat := catalog.NewDBCatalog(db)
	checkoutService := checkout.NewService(db, cat, registry, store, logger, baseURL)

	pollLimiter := middleware.NewRateLimiter(config.GetEnvInt("STATUS_POLL_LIMIT", 30), time.Minute, middleware.ByClientIP)
	webhookLimiter := middleware.NewRateLimiter(config.GetEnvInt("WEBHOOK_LIMIT", 120), time.Minute, middleware.ByRouteAndIP)
	defer pollLimiter.Close()
	defer webhookLimiter.Close()

	// Setup Gin router
	if config.GetEnv("GIN_MODE", "") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(logger))

	// CORS configuration - filter out empty strings from AllowOrigins
	var origins []string
	for _, o := range strings.Split(os.Getenv("FRONTEND_URL"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
		logger.Warn().Msg("no CORS origins configured, defaulting to http://localhost:3000")
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	// Setup routes
	routes.SetupRoutes(r, routes.Dependencies{
		DB:             db,
		Catalog:        cat,
		Checkout:       checkoutService,
		Sessions:       sessions,
		SessionTTL:     config.GetEnvDuration("SESSION_TTL", session.DefaultTTL),
		SecureCookies:  strings.HasPrefix(baseURL, "https://"),
		Logger:         logger,
		PollLimiter:    pollLimiter,
		WebhookLimiter: webhookLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in a goroutine
	go func() {
		logger.Info().Str("port", port).Str("base_url", baseURL).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush metrics")
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis connection")
		}
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing database connection")
		}
	}

	logger.Info().Msg("server exited gracefully")
}
