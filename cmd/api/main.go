package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpadp "loan-registrar/internal/adapter/http"
	appmw "loan-registrar/internal/adapter/middleware"
	mysqlrepo "loan-registrar/internal/adapter/repository/mysql"
	redisrepo "loan-registrar/internal/adapter/repository/redis"
	"loan-registrar/internal/clock"
	"loan-registrar/internal/config"
	"loan-registrar/internal/domain/kv"
	"loan-registrar/internal/infrastructure/cache"
	"loan-registrar/internal/infrastructure/db"
	"loan-registrar/internal/infrastructure/logging"
	"loan-registrar/internal/usecase/loan"
)

const serviceName = "loan-registrar"

func main() {
	cfg, logger := initializeConfigAndLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := setupRedis(cfg, logger)
	store, closeStore := setupStore(ctx, cfg, rdb, logger)
	defer closeStore()

	policy, err := loan.ParsePolicy(cfg.WritePolicy)
	if err != nil {
		logger.Error("Invalid write policy", slog.Any("error", err))
		os.Exit(1)
	}
	uc := loan.NewUsecase(store, clock.NewSystem(), policy, loan.WithLogger(logger))

	e := newServer(cfg, logger)
	var createMW []echo.MiddlewareFunc
	if rdb != nil {
		createMW = append(createMW, appmw.IdempotencyMiddleware(rdb, cfg.IdempotencyTTL(), logger))
	}
	httpadp.RegisterRoutes(e, httpadp.NewHandler(serviceName), httpadp.NewLoanHandler(uc), createMW...)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		addr := ":" + cfg.AppPort
		logger.Info("Listening", slog.String("addr", addr), slog.String("store", cfg.StoreBackend), slog.String("policy", policy.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received. Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", slog.Any("error", err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info("Loan registrar shut down gracefully.")
}

func initializeConfigAndLogger() (*config.Config, *slog.Logger) {
	// .env is optional; real environments inject variables directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("could not read .env: %v", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("Configuration loaded successfully")
	return cfg, logger
}

// setupRedis is fatal only when redis is the store; otherwise idempotency is disabled.
func setupRedis(cfg *config.Config, logger *slog.Logger) *redis.Client {
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err == nil {
		logger.Info("Redis connection established", slog.String("addr", cfg.RedisAddr))
		return rdb
	}
	if cfg.StoreBackend == config.BackendRedis {
		logger.Error("Failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Warn("Redis unavailable, Idempotency-Key support disabled", slog.Any("error", err))
	return nil
}

func setupStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (kv.Store, func()) {
	if cfg.StoreBackend == config.BackendRedis {
		return redisrepo.NewStore(rdb, cfg.LoanTable), func() {}
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN(), logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	store := mysqlrepo.NewItemStore(gdb, cfg.LoanTable)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("Failed to migrate item table", slog.String("table", cfg.LoanTable), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Database connection established", slog.String("table", cfg.LoanTable))
	return store, func() {
		logger.Info("Closing database connection pool...")
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func newServer(cfg *config.Config, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				logger.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
				return nil
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))
	e.Use(appmw.CORS())
	e.Use(appmw.Metrics())
	e.Use(middleware.ContextTimeout(cfg.RequestTimeout))
	return e
}
