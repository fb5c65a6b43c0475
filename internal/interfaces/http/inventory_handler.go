package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lacosecha/despacho-api/internal/application/dto"
	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
	"github.com/lacosecha/despacho-api/internal/infrastructure/excel"
)

// InventoryHandler maneja las peticiones HTTP de movimientos y stock (protegido).
type InventoryHandler struct {
	movements *inventory.RegisterMovementUseCase
	queries   *inventory.StockQueryUseCase
	exporter  *excel.MovementsExporter
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(
	movements *inventory.RegisterMovementUseCase,
	queries *inventory.StockQueryUseCase,
	exporter *excel.MovementsExporter,
) *InventoryHandler {
	return &InventoryHandler{movements: movements, queries: queries, exporter: exporter}
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de stock (entrada, salida, ajuste)
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterMovementRequest  true  "type, product_id, location_id, quantity; produced_on para entradas; lot_id para ajustes y salidas puntuales"
// @Success      201   {object}  map[string]string
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	input := inventory.MovementInputDTO{
		UserID:     GetUserID(c),
		ProductID:  in.ProductID,
		LocationID: in.LocationID,
		LotID:      in.LotID,
		Type:       in.Type,
		Quantity:   in.Quantity,
		Reason:     in.Reason,
	}
	if in.ProducedOn != "" {
		producedOn, err := time.Parse("2006-01-02", in.ProducedOn)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "produced_on debe ser YYYY-MM-DD"})
		}
		input.ProducedOn = &producedOn
	}

	if err := h.movements.RegisterMovement(c.Context(), input); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "movimiento registrado"})
}

// GetStock godoc
// @Summary      Stock por lotes de un producto en una ubicación
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id   query  string  true  "Producto"
// @Param        location_id  query  string  true  "Ubicación"
// @Success      200  {object}  dto.StockSummaryResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots [get]
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	summary, err := h.queries.GetStock(c.Context(), c.Query("product_id"), c.Query("location_id"))
	if err != nil {
		return respondError(c, err)
	}
	resp := dto.StockSummaryResponse{
		ProductID:      summary.ProductID,
		LocationID:     summary.LocationID,
		TotalQuantity:  summary.TotalQuantity,
		TotalReserved:  summary.TotalReserved,
		TotalAvailable: summary.TotalAvailable,
		Lots:           make([]dto.LotResponse, 0, len(summary.Lots)),
	}
	for _, l := range summary.Lots {
		resp.Lots = append(resp.Lots, dto.NewLotResponse(l))
	}
	return c.JSON(resp)
}

// GetLot godoc
// @Summary      Detalle de un lote
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del lote"
// @Success      200  {object}  dto.LotResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{id} [get]
func (h *InventoryHandler) GetLot(c *fiber.Ctx) error {
	lot, err := h.queries.GetLot(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewLotResponse(lot))
}

// ListMovements godoc
// @Summary      Registro de auditoría de movimientos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id   query  string  false  "Filtrar por producto"
// @Param        location_id  query  string  false  "Filtrar por ubicación"
// @Param        from         query  string  false  "Desde (RFC3339)"
// @Param        to           query  string  false  "Hasta (RFC3339)"
// @Param        limit        query  int     false  "Límite (default 20)"
// @Param        offset       query  int     false  "Offset"
// @Success      200  {array}   dto.MovementResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	filter, err := movementFilterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	list, err := h.queries.ListMovements(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	resp := make([]dto.MovementResponse, 0, len(list))
	for _, m := range list {
		resp = append(resp, dto.NewMovementResponse(m))
	}
	return c.JSON(resp)
}

// ExportMovements godoc
// @Summary      Exportar movimientos a XLSX
// @Tags         inventory
// @Security     Bearer
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        product_id   query  string  false  "Filtrar por producto"
// @Param        location_id  query  string  false  "Filtrar por ubicación"
// @Param        from         query  string  false  "Desde (RFC3339)"
// @Param        to           query  string  false  "Hasta (RFC3339)"
// @Success      200  {file}  binary
// @Router       /api/inventory/movements/export [get]
func (h *InventoryHandler) ExportMovements(c *fiber.Ctx) error {
	filter, err := movementFilterFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	// El export no pagina: se lleva todo lo que el filtro deje pasar.
	filter.Limit = 10000
	filter.Offset = 0

	list, err := h.queries.ListMovements(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	buf, err := h.exporter.Export(list)
	if err != nil {
		return respondError(c, err)
	}
	filename := "movimientos_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}

func movementFilterFromQuery(c *fiber.Ctx) (repository.MovementFilter, error) {
	page := dto.PageRequest{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}
	page.DefaultPage()
	filter := repository.MovementFilter{
		ProductID:  c.Query("product_id"),
		LocationID: c.Query("location_id"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, fmt.Errorf("from debe ser RFC3339: %w", domain.ErrInvalidInput)
		}
		filter.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, fmt.Errorf("to debe ser RFC3339: %w", domain.ErrInvalidInput)
		}
		filter.To = &t
	}
	return filter, nil
}
