package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lacosecha/despacho-api/internal/application/dto"
	"github.com/lacosecha/despacho-api/internal/domain"
)

// respondError traduce errores de dominio a respuestas HTTP.
//
// 400 entrada inválida · 403 sin permiso · 404 no encontrado ·
// 409 conflicto de concurrencia o transición · 422 la asignación no cierra
// contra el stock actual (con detalle accionable para que el trabajador
// corrija sin reenviar todo).
func respondError(c *fiber.Ctx, err error) error {
	var shortfall *domain.ShortfallError
	if errors.As(err, &shortfall) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":       "SHORTFALL",
			"message":    shortfall.Error(),
			"product_id": shortfall.ProductID,
			"required":   shortfall.Required,
			"allocated":  shortfall.Allocated,
		})
	}
	var overAlloc *domain.OverAllocationError
	if errors.As(err, &overAlloc) {
		body := fiber.Map{
			"code":       "OVER_ALLOCATION",
			"message":    overAlloc.Error(),
			"product_id": overAlloc.ProductID,
			"requested":  overAlloc.Requested,
			"limit":      overAlloc.Limit,
		}
		if overAlloc.LotID != "" {
			body["lot_id"] = overAlloc.LotID
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
	}
	var negative *domain.NegativeStockError
	if errors.As(err, &negative) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":     "NEGATIVE_STOCK",
			"message":  negative.Error(),
			"lot_id":   negative.LotID,
			"quantity": negative.Quantity,
			"reserved": negative.Reserved,
		})
	}
	var conflict *domain.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: conflict.Error()})
	}
	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_TRANSITION", Message: transition.Error()})
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: "recurso duplicado"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
