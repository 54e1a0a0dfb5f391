package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ads-marketplace/backend/internal/config"
	"github.com/ads-marketplace/backend/internal/http/dto"
)

// InfoHandler renders the public, unauthenticated service snapshot: mint
// URL, supported unit, and the configured operating limits.
type InfoHandler struct {
	cfg *config.Config
}

func NewInfoHandler(cfg *config.Config) *InfoHandler {
	return &InfoHandler{cfg: cfg}
}

// GET /info
func (h *InfoHandler) Info(c *fiber.Ctx) error {
	return c.JSON(dto.InfoResponse{
		Status: h.cfg.ServiceStatus,
		Help:   h.cfg.ServiceHelp,
		Terms:  h.cfg.ServiceTerms,
		Unit:   h.cfg.Unit,
		Mint:   h.cfg.MintURL,
		Limits: dto.InfoLimitsPayload{
			MaxBalance:             h.cfg.MaxBalance,
			MaxSend:                h.cfg.MaxSend,
			MaxPay:                 h.cfg.MaxPay,
			RateLimitMax:           h.cfg.RateLimitMax,
			RateLimitWindowSeconds: int(h.cfg.RateLimitWindow.Seconds()),
		},
	})
}
