package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lacosecha/despacho-api/internal/application/fulfillment"
	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/infrastructure/excel"
	"github.com/lacosecha/despacho-api/internal/infrastructure/pdf"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	RegisterMovement *inventory.RegisterMovementUseCase
	StockQueries     *inventory.StockQueryUseCase
	JobUC            *fulfillment.JobUseCase
	JWTSecret        string
}

// Router registra las rutas de la API. Todo el API es protegido: los tokens
// los emite la plataforma de e-commerce, este servicio solo los valida.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	// Inventario: movimientos y stock por lotes
	invGroup := api.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.RegisterMovement, deps.StockQueries, excel.NewMovementsExporter())
	invGroup.Post("/movements", RequireRole("admin", "bodeguero"), inventoryHandler.RegisterMovement)
	invGroup.Get("/movements", inventoryHandler.ListMovements)
	invGroup.Get("/movements/export", RequireRole("admin"), inventoryHandler.ExportMovements)
	invGroup.Get("/lots", inventoryHandler.GetStock)
	invGroup.Get("/lots/:id", inventoryHandler.GetLot)

	// Trabajos de despacho
	jobs := api.Group("/jobs")
	fulfillmentHandler := NewFulfillmentHandler(deps.JobUC, deps.StockQueries, pdf.NewPickingSheetGenerator())
	jobs.Post("/", fulfillmentHandler.Create)
	jobs.Get("/", fulfillmentHandler.List)
	jobs.Get("/:id", fulfillmentHandler.GetByID)
	jobs.Put("/:id/claim", RequireRole("admin", "bodeguero"), fulfillmentHandler.Claim)
	jobs.Post("/:id/allocations", fulfillmentHandler.Suggest)
	jobs.Put("/:id/prepare", RequireRole("admin", "bodeguero"), fulfillmentHandler.ConfirmPreparation)
	jobs.Put("/:id/transition", RequireRole("admin", "bodeguero"), fulfillmentHandler.Transition)
	jobs.Get("/:id/picking-sheet", fulfillmentHandler.PickingSheet)
}
