package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/backend/internal/apperr"
	"github.com/ads-marketplace/backend/internal/http/dto"
	"github.com/ads-marketplace/backend/internal/middleware"
)

// respondErr maps an engine/facade error to its HTTP status, preferring
// the status carried on an *apperr.AppError over a generic 500. Every
// handler funnels its error return through this one place so the status
// code is never re-derived by string-matching.
func respondErr(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)

	if ae, ok := apperr.As(err); ok {
		if ae.StatusCode >= 500 {
			log.Error("request failed", zap.String("kind", string(ae.Kind)), zap.Error(ae), zap.String("request_id", reqID))
		}
		return c.Status(ae.StatusCode).JSON(dto.ErrorResponse{Error: ae.Error(), RequestID: reqID})
	}

	log.Error("unhandled request error", zap.Error(err), zap.String("request_id", reqID))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error", RequestID: reqID})
}
