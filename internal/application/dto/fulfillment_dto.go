package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// CreateJobRequest body para POST /api/jobs.
type CreateJobRequest struct {
	Reference  string           `json:"reference,omitempty"`
	LocationID string           `json:"location_id"`
	LineItems  []JobLineRequest `json:"line_items"`
}

// JobLineRequest una línea de pedido dentro de la creación de un trabajo.
type JobLineRequest struct {
	ProductID        string          `json:"product_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
}

// AllocationRequest asignación de lotes para una línea (sugerida o editada).
type AllocationRequest struct {
	ProductID string                   `json:"product_id"`
	Entries   []AllocationEntryPayload `json:"entries"`
}

// AllocationEntryPayload un par lote/cantidad dentro de una asignación.
// Se usa tanto en requests como en responses.
type AllocationEntryPayload struct {
	LotID    string          `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ToEntity convierte la asignación del request a la entidad de dominio.
func (a AllocationRequest) ToEntity() entity.Allocation {
	entries := make([]entity.AllocationEntry, len(a.Entries))
	for i, e := range a.Entries {
		entries[i] = entity.AllocationEntry{LotID: e.LotID, Quantity: e.Quantity}
	}
	return entity.Allocation{ProductID: a.ProductID, Entries: entries}
}

// ConfirmPreparationRequest body para POST /api/jobs/:id/prepare.
type ConfirmPreparationRequest struct {
	Allocations []AllocationRequest `json:"allocations"`
}

// TransitionRequest body para POST /api/jobs/:id/transition.
type TransitionRequest struct {
	State string `json:"state"` // in_transit | delivered | cancelled
}

// AllocationResponse asignación confirmada en respuestas.
type AllocationResponse struct {
	ProductID string                   `json:"product_id"`
	Entries   []AllocationEntryPayload `json:"entries"`
}

// JobLineResponse una línea de pedido en respuestas.
type JobLineResponse struct {
	ProductID        string          `json:"product_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
}

// JobResponse un trabajo de despacho en respuestas HTTP.
type JobResponse struct {
	ID          string               `json:"id"`
	Reference   string               `json:"reference,omitempty"`
	LocationID  string               `json:"location_id"`
	State       string               `json:"state"`
	ClaimedBy   string               `json:"claimed_by,omitempty"`
	LineItems   []JobLineResponse    `json:"line_items"`
	Allocations []AllocationResponse `json:"allocations,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// NewJobResponse convierte la entidad al DTO de respuesta.
func NewJobResponse(j *entity.FulfillmentJob) JobResponse {
	resp := JobResponse{
		ID:         j.ID,
		Reference:  j.Reference,
		LocationID: j.LocationID,
		State:      j.State,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.ClaimedBy != nil {
		resp.ClaimedBy = *j.ClaimedBy
	}
	resp.LineItems = make([]JobLineResponse, len(j.LineItems))
	for i, li := range j.LineItems {
		resp.LineItems[i] = JobLineResponse{ProductID: li.ProductID, RequiredQuantity: li.RequiredQuantity}
	}
	for _, a := range j.Allocations {
		resp.Allocations = append(resp.Allocations, newAllocationResponse(a))
	}
	return resp
}

func newAllocationResponse(a entity.Allocation) AllocationResponse {
	entries := make([]AllocationEntryPayload, len(a.Entries))
	for i, e := range a.Entries {
		entries[i] = AllocationEntryPayload{LotID: e.LotID, Quantity: e.Quantity}
	}
	return AllocationResponse{ProductID: a.ProductID, Entries: entries}
}

// SuggestionResponse preselección FIFO de una línea para revisión del trabajador.
type SuggestionResponse struct {
	ProductID string                   `json:"product_id"`
	Required  decimal.Decimal          `json:"required"`
	Suggested []AllocationEntryPayload `json:"suggested"`
	Shortfall decimal.Decimal          `json:"shortfall"`
}
