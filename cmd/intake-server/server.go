package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/vekaria04/hospital-management-system/internal/config"
	"github.com/vekaria04/hospital-management-system/internal/domain/doctor"
	"github.com/vekaria04/hospital-management-system/internal/domain/patient"
	"github.com/vekaria04/hospital-management-system/internal/domain/questionnaire"
	"github.com/vekaria04/hospital-management-system/internal/platform/auth"
	"github.com/vekaria04/hospital-management-system/internal/platform/cache"
	"github.com/vekaria04/hospital-management-system/internal/platform/db"
	"github.com/vekaria04/hospital-management-system/internal/platform/events"
	"github.com/vekaria04/hospital-management-system/internal/platform/middleware"
	"github.com/vekaria04/hospital-management-system/internal/platform/reporting"
	"github.com/vekaria04/hospital-management-system/internal/platform/validate"
)

const version = "0.1.0"

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	applied, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if applied > 0 {
		logger.Info().Int("count", applied).Msg("applied migrations")
	}

	schemaCache := newSchemaCache(ctx, cfg, logger)
	publisher := newPublisher(ctx, cfg, logger)
	defer publisher.Close()

	e := newEcho(cfg, logger)

	api := e.Group("/api")
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	// Domains
	questionSvc := questionnaire.NewService(
		questionnaire.NewQuestionRepo(pool),
		questionnaire.NewSubmissionRepo(pool),
		schemaCache,
		publisher,
	)
	questionnaire.NewHandler(questionSvc).RegisterRoutes(api)

	patientSvc := patient.NewService(patient.NewRepo(pool), pool, publisher)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	doctorSvc := doctor.NewService(doctor.NewRepo(pool))
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)

	reporting.NewHandler(reporting.NewStore(pool)).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the server with the global middleware chain and auth mode
// from cfg. Routes are registered by the caller.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept-Language", "X-Request-ID", "If-None-Match"},
	}))
	e.Use(middleware.BodyLimit(middleware.ParseLimit(cfg.BodyLimit)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/reports/submissions.xlsx"))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.Locale(cfg.SupportedLanguages, cfg.DefaultLanguage))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:         cfg.AuthIssuer,
			Audience:       cfg.AuthAudience,
			JWKSURL:        cfg.AuthJWKSURL,
			SigningKey:     []byte(cfg.AuthSigningKey),
			Skipper:        auth.AuthSkipper,
			AllowAnonymous: true,
		}))
	}
	return e
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

// newSchemaCache returns a Redis cache when REDIS_URL is set and reachable,
// otherwise a per-process memory cache.
func newSchemaCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) cache.SchemaCache {
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info().Msg("schema cache: redis")
			return cache.NewRedisSchemaCache(client, cfg.SchemaCacheTTL, logger)
		}
		logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory schema cache")
	}
	return cache.NewMemorySchemaCache(cfg.SchemaCacheTTL)
}

// newPublisher returns a Kafka publisher when brokers are configured.
// Otherwise events go to an in-process channel that is logged.
func newPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic, logger)
		if err == nil {
			logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.EventsTopic).Msg("events: kafka")
			return pub
		}
		logger.Warn().Err(err).Msg("kafka unavailable, events stay in process")
	}
	ch := events.NewChannelPubSub(logger)
	if err := events.Log(ctx, ch, cfg.EventsTopic, logger); err != nil {
		logger.Warn().Err(err).Msg("event log subscriber not started")
	}
	return events.NewWatermillPublisher(ch, cfg.EventsTopic, logger)
}
