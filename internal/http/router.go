package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/config"
	"github.com/ads-marketplace/backend/internal/http/handlers"
	"github.com/ads-marketplace/backend/internal/middleware"
	"github.com/ads-marketplace/backend/internal/store"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	st store.Store,
	infoHandler *handlers.InfoHandler,
	walletHandler *handlers.WalletHandler,
	rateHandler *handlers.RateHandler,
) {
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitMax, cfg.RateLimitWindow))

	v1.Get("/info", infoHandler.Info)
	v1.Get("/rate/:currency", rateHandler.GetRate)

	v1.Post("/wallet", middleware.RateLimitMiddleware(rdb, cfg.RateLimitCreateWalletMax, cfg.RateLimitWindow), walletHandler.CreateWallet)

	protected := v1.Group("/wallet", middleware.AuthMiddleware(st, log))
	protected.Get("", walletHandler.GetWallet)
	protected.Post("/deposit", walletHandler.Deposit)
	protected.Get("/deposit/:quote", walletHandler.CheckDeposit)
	protected.Post("/send", walletHandler.Send)
	protected.Post("/check", walletHandler.Check)
	protected.Post("/decode", walletHandler.Decode)
	protected.Post("/pay", walletHandler.Pay)
	protected.Get("/pay/:quote", walletHandler.CheckPay)
	protected.Post("/receive", walletHandler.Receive)
	protected.Get("/audit", walletHandler.GetAuditLog)
}
