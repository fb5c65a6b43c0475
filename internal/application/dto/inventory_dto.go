package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// RegisterMovementRequest body para POST /api/inventory/movements.
// entrada: product_id, location_id, quantity > 0 y produced_on (YYYY-MM-DD).
// salida: quantity > 0; lot_id o produced_on apuntan a un lote concreto,
// ambos vacíos = FIFO. ajuste: lot_id y quantity (cantidad resultante).
type RegisterMovementRequest struct {
	ProductID  string          `json:"product_id"`
	LocationID string          `json:"location_id"`
	LotID      string          `json:"lot_id,omitempty"`
	Type       string          `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	ProducedOn string          `json:"produced_on,omitempty"` // YYYY-MM-DD
	Reason     string          `json:"reason,omitempty"`
}

// LotResponse un lote en respuestas HTTP.
type LotResponse struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	LocationID string          `json:"location_id"`
	ProducedOn string          `json:"produced_on"` // YYYY-MM-DD
	Quantity   decimal.Decimal `json:"quantity"`
	Reserved   decimal.Decimal `json:"reserved"`
	Available  decimal.Decimal `json:"available"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewLotResponse convierte la entidad al DTO de respuesta.
func NewLotResponse(l *entity.Lot) LotResponse {
	return LotResponse{
		ID:         l.ID,
		ProductID:  l.ProductID,
		LocationID: l.LocationID,
		ProducedOn: l.ProducedOn.Format("2006-01-02"),
		Quantity:   l.Quantity,
		Reserved:   l.Reserved,
		Available:  l.Available(),
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

// StockSummaryResponse totales agregados de un producto en una ubicación.
type StockSummaryResponse struct {
	ProductID      string          `json:"product_id"`
	LocationID     string          `json:"location_id"`
	TotalQuantity  decimal.Decimal `json:"total_quantity"`
	TotalReserved  decimal.Decimal `json:"total_reserved"`
	TotalAvailable decimal.Decimal `json:"total_available"`
	Lots           []LotResponse   `json:"lots"`
}

// MovementResponse un movimiento del registro de auditoría.
type MovementResponse struct {
	ID         string          `json:"id"`
	LotID      string          `json:"lot_id"`
	ProductID  string          `json:"product_id"`
	LocationID string          `json:"location_id"`
	Type       string          `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason,omitempty"`
	JobID      string          `json:"job_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	CreatedBy  string          `json:"created_by,omitempty"`
}

// NewMovementResponse convierte la entidad al DTO de respuesta.
func NewMovementResponse(m *entity.StockMovement) MovementResponse {
	return MovementResponse{
		ID:         m.ID,
		LotID:      m.LotID,
		ProductID:  m.ProductID,
		LocationID: m.LocationID,
		Type:       m.Type,
		Quantity:   m.Quantity,
		Reason:     m.Reason,
		JobID:      m.JobID,
		CreatedAt:  m.CreatedAt,
		CreatedBy:  m.CreatedBy,
	}
}
