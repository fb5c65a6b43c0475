package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/lacosecha/despacho-api/internal/application/dto"
	"github.com/lacosecha/despacho-api/internal/application/fulfillment"
	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/infrastructure/pdf"
)

// FulfillmentHandler maneja las peticiones HTTP del ciclo de vida de los
// trabajos de despacho (protegido).
type FulfillmentHandler struct {
	jobs    *fulfillment.JobUseCase
	queries *inventory.StockQueryUseCase
	picking *pdf.PickingSheetGenerator
}

// NewFulfillmentHandler construye el handler.
func NewFulfillmentHandler(
	jobs *fulfillment.JobUseCase,
	queries *inventory.StockQueryUseCase,
	picking *pdf.PickingSheetGenerator,
) *FulfillmentHandler {
	return &FulfillmentHandler{jobs: jobs, queries: queries, picking: picking}
}

// Create godoc
// @Summary      Encolar un trabajo de despacho
// @Tags         jobs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateJobRequest  true  "location_id y líneas de pedido"
// @Success      201   {object}  dto.JobResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/jobs [post]
func (h *FulfillmentHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateJobRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	lines := make([]entity.JobLineItem, len(in.LineItems))
	for i, li := range in.LineItems {
		lines[i] = entity.JobLineItem{ProductID: li.ProductID, RequiredQuantity: li.RequiredQuantity}
	}
	job, err := h.jobs.CreateJob(c.Context(), fulfillment.CreateJobInput{
		Reference:  in.Reference,
		LocationID: in.LocationID,
		LineItems:  lines,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewJobResponse(job))
}

// List godoc
// @Summary      Listar trabajos de despacho
// @Tags         jobs
// @Security     Bearer
// @Produce      json
// @Param        state   query  string  false  "Filtrar por estado"
// @Param        limit   query  int     false  "Límite (default 20)"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {array}  dto.JobResponse
// @Router       /api/jobs [get]
func (h *FulfillmentHandler) List(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}
	page.DefaultPage()
	list, err := h.jobs.ListJobs(c.Context(), c.Query("state"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	resp := make([]dto.JobResponse, 0, len(list))
	for _, j := range list {
		resp = append(resp, dto.NewJobResponse(j))
	}
	return c.JSON(resp)
}

// GetByID godoc
// @Summary      Detalle de un trabajo
// @Tags         jobs
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del trabajo"
// @Success      200  {object}  dto.JobResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id} [get]
func (h *FulfillmentHandler) GetByID(c *fiber.Ctx) error {
	job, err := h.jobs.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewJobResponse(job))
}

// Claim godoc
// @Summary      Reclamar un trabajo pending (dueño único)
// @Tags         jobs
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del trabajo"
// @Success      200  {object}  dto.JobResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/claim [put]
func (h *FulfillmentHandler) Claim(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if err := h.jobs.Claim(c.Context(), jobID, GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	job, err := h.jobs.GetJob(c.Context(), jobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewJobResponse(job))
}

// Suggest godoc
// @Summary      Preselección FIFO de lotes por línea
// @Description  Sugerencia editable sobre el disponible del momento; todo se
//
//	revalida al confirmar la preparación.
//
// @Tags         jobs
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID del trabajo"
// @Success      200  {array}   dto.SuggestionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/allocations [post]
func (h *FulfillmentHandler) Suggest(c *fiber.Ctx) error {
	suggestions, err := h.jobs.SuggestAllocations(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	resp := make([]dto.SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		entries := make([]dto.AllocationEntryPayload, 0, len(s.Suggested.Entries))
		for _, e := range s.Suggested.Entries {
			entries = append(entries, dto.AllocationEntryPayload{LotID: e.LotID, Quantity: e.Quantity})
		}
		resp = append(resp, dto.SuggestionResponse{
			ProductID: s.ProductID,
			Required:  s.Required,
			Suggested: entries,
			Shortfall: s.Shortfall,
		})
	}
	return c.JSON(resp)
}

// ConfirmPreparation godoc
// @Summary      Confirmar asignaciones y reservar stock (claimed → prepared)
// @Tags         jobs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del trabajo"
// @Param        body  body  dto.ConfirmPreparationRequest  true  "asignaciones por línea (sugeridas o editadas)"
// @Success      200   {object}  dto.JobResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/prepare [put]
func (h *FulfillmentHandler) ConfirmPreparation(c *fiber.Ctx) error {
	var in dto.ConfirmPreparationRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	allocs := make([]entity.Allocation, len(in.Allocations))
	for i, a := range in.Allocations {
		allocs[i] = a.ToEntity()
	}
	jobID := c.Params("id")
	if err := h.jobs.ConfirmPreparation(c.Context(), jobID, GetUserID(c), allocs); err != nil {
		return respondError(c, err)
	}
	job, err := h.jobs.GetJob(c.Context(), jobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewJobResponse(job))
}

// Transition godoc
// @Summary      Transicionar el trabajo (in_transit, delivered, cancelled)
// @Tags         jobs
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string  true  "ID del trabajo"
// @Param        body  body  dto.TransitionRequest  true  "estado destino"
// @Success      200   {object}  dto.JobResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/transition [put]
func (h *FulfillmentHandler) Transition(c *fiber.Ctx) error {
	var in dto.TransitionRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	jobID := c.Params("id")
	if _, err := h.jobs.Transition(c.Context(), jobID, in.State); err != nil {
		return respondError(c, err)
	}
	job, err := h.jobs.GetJob(c.Context(), jobID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewJobResponse(job))
}

// PickingSheet godoc
// @Summary      Hoja de picking en PDF de un trabajo preparado
// @Tags         jobs
// @Security     Bearer
// @Produce      application/pdf
// @Param        id  path  string  true  "ID del trabajo"
// @Success      200  {file}  binary
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/jobs/{id}/picking-sheet [get]
func (h *FulfillmentHandler) PickingSheet(c *fiber.Ctx) error {
	job, err := h.jobs.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if len(job.Allocations) == 0 {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Code: "NOT_PREPARED", Message: "el trabajo aún no tiene asignaciones confirmadas",
		})
	}

	lotsByID := make(map[string]*entity.Lot)
	for _, alloc := range job.Allocations {
		for _, e := range alloc.Entries {
			if _, ok := lotsByID[e.LotID]; ok {
				continue
			}
			lot, err := h.queries.GetLot(c.Context(), e.LotID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue // el PDF imprime el lote solo con su ID
				}
				return respondError(c, err)
			}
			lotsByID[e.LotID] = lot
		}
	}

	pdfBytes, err := h.picking.Generate(job, lotsByID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="picking_`+job.ID+`.pdf"`)
	return c.Send(pdfBytes)
}
