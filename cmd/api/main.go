package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ads-marketplace/backend/internal/config"
	"github.com/ads-marketplace/backend/internal/db"
	"github.com/ads-marketplace/backend/internal/engine"
	"github.com/ads-marketplace/backend/internal/events"
	apphttp "github.com/ads-marketplace/backend/internal/http"
	"github.com/ads-marketplace/backend/internal/http/handlers"
	"github.com/ads-marketplace/backend/internal/lnurl"
	"github.com/ads-marketplace/backend/internal/mintclient"
	"github.com/ads-marketplace/backend/internal/ratecache"
	"github.com/ads-marketplace/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Store, audit, collaborators
	st := repositories.NewPostgresStore(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	mintClient := mintclient.Shared(log)
	lnurlResolver := lnurl.NewResolver(log)
	rates := ratecache.New(cfg.RateOracleURL, rdb, log)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)

	// Engine
	proofEngine := engine.New(st, mintClient, auditRepo, publisher, log)

	// Handlers
	infoHandler := handlers.NewInfoHandler(cfg)
	walletHandler := handlers.NewWalletHandler(st, auditRepo, proofEngine, cfg, lnurlResolver, log)
	rateHandler := handlers.NewRateHandler(rates, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, st, infoHandler, walletHandler, rateHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
