package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/models"
	"github.com/ads-marketplace/backend/internal/store"
)

const CtxWallet = "wallet"

// AuthMiddleware resolves the bearer token against a wallet's stored
// access_key. There is no separate identity system sitting above a
// wallet, so the credential and the bearer token are the same value.
func AuthMiddleware(st store.Store, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		accessKey := strings.TrimPrefix(authHeader, "Bearer ")
		if accessKey == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		wallet, err := st.FindWalletByAccessKey(c.Context(), accessKey)
		if err != nil {
			log.Error("wallet lookup failed during auth", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid access key"})
		}
		if wallet == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid access key"})
		}

		c.Locals(CtxWallet, wallet)
		return c.Next()
	}
}

// GetWallet retrieves the wallet resolved by AuthMiddleware.
func GetWallet(c *fiber.Ctx) *models.Wallet {
	w, _ := c.Locals(CtxWallet).(*models.Wallet)
	return w
}
