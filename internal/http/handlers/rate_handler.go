package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/http/dto"
	"github.com/ads-marketplace/backend/internal/ratecache"
)

type RateHandler struct {
	rates *ratecache.Cache
	log   *zap.Logger
}

func NewRateHandler(rates *ratecache.Cache, log *zap.Logger) *RateHandler {
	return &RateHandler{rates: rates, log: log}
}

// GET /rate/:currency
func (h *RateHandler) GetRate(c *fiber.Ctx) error {
	rate, err := h.rates.GetRate(c.Context(), c.Params("currency"))
	if err != nil {
		return respondErr(c, h.log, err)
	}
	return c.JSON(dto.RateResponse{
		Currency:  rate.Currency,
		Rate:      rate.RateSatsPerUnit,
		Timestamp: rate.TimestampMs,
	})
}
