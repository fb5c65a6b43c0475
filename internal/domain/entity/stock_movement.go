package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de inventario.
const (
	MovementTypeEntrada = "entrada" // ingreso de producción (crea o fusiona lote)
	MovementTypeSalida  = "salida"  // retiro de stock disponible (lote puntual o FIFO)
	MovementTypeAjuste  = "ajuste"  // corrección: fija la cantidad de un lote
	MovementTypeEntrega = "entrega" // descuento definitivo al entregar un trabajo
)

// StockMovement es el registro de auditoría de un movimiento sobre un lote.
// Append-only: nunca se modifica después de creado.
type StockMovement struct {
	ID         string
	LotID      string
	ProductID  string
	LocationID string
	Type       string
	Quantity   decimal.Decimal // positivo entrada; negativo salida/entrega; ajuste = delta aplicado
	Reason     string
	JobID      string // trabajo de despacho asociado (solo entregas)
	CreatedAt  time.Time
	CreatedBy  string // UserID del operario
}
