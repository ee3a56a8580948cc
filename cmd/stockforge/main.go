package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockforge/stockforge/internal/app"
	"github.com/stockforge/stockforge/internal/auth"
	"github.com/stockforge/stockforge/internal/catalog"
	"github.com/stockforge/stockforge/internal/observability"
	"github.com/stockforge/stockforge/internal/platform/cache"
	"github.com/stockforge/stockforge/internal/platform/db"
	"github.com/stockforge/stockforge/internal/production"
	"github.com/stockforge/stockforge/internal/purchasing"
	"github.com/stockforge/stockforge/internal/recipe"
	"github.com/stockforge/stockforge/internal/sales"
	"github.com/stockforge/stockforge/internal/shared"
	"github.com/stockforge/stockforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	productCache := catalog.NewCache(redisClient, cfg.CacheTTL)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, productCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	recipeRepo := recipe.NewRepository(pool)
	recipeService := recipe.NewService(recipeRepo, productCache, auditLogger)
	recipeHandler := recipe.NewHandler(logger, recipeService)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, productCache, auditLogger, idempotencyStore).WithMetrics(metrics)
	productionHandler := production.NewHandler(logger, productionService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, productCache, auditLogger, idempotencyStore)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, productCache, auditLogger, idempotencyStore).WithMetrics(metrics)
	salesHandler := sales.NewHandler(logger, salesService)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokenStore)
	authHandler := auth.NewHandler(logger, authService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		AuthHandler:       authHandler,
		CatalogHandler:    catalogHandler,
		RecipeHandler:     recipeHandler,
		ProductionHandler: productionHandler,
		PurchasingHandler: purchasingHandler,
		SalesHandler:      salesHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
