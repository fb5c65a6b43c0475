package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un trabajo de despacho. Son los valores de la API y de la BD.
const (
	JobStatePending   = "pending"    // en cola, sin asignar
	JobStateClaimed   = "claimed"    // reclamado por un trabajador
	JobStatePrepared  = "prepared"   // asignaciones confirmadas y stock reservado
	JobStateInTransit = "in_transit" // en reparto
	JobStateDelivered = "delivered"  // terminal: stock descontado definitivamente
	JobStateCancelled = "cancelled"  // terminal: reservas liberadas
)

// JobLineItem es una línea del pedido: producto y cantidad requerida.
type JobLineItem struct {
	ProductID        string
	RequiredQuantity decimal.Decimal
}

// FulfillmentJob es un pedido o solicitud de stock que requiere preparación
// física. Pasa por la máquina de estados pending → claimed → prepared →
// in_transit → delivered; cancelled es alcanzable desde cualquier estado no
// terminal. Las asignaciones confirmadas se guardan para auditoría.
type FulfillmentJob struct {
	ID          string
	Reference   string // pedido/orden de origen
	LocationID  string
	State       string
	ClaimedBy   *string // UserID del trabajador; nil mientras está pending
	LineItems   []JobLineItem
	Allocations []Allocation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// transitions define las transiciones válidas de la máquina de estados.
// cancelled se maneja aparte: válido desde cualquier estado no terminal.
var transitions = map[string]string{
	JobStatePending:   JobStateClaimed,
	JobStateClaimed:   JobStatePrepared,
	JobStatePrepared:  JobStateInTransit,
	JobStateInTransit: JobStateDelivered,
}

// IsTerminalState indica si un estado no admite más transiciones.
func IsTerminalState(state string) bool {
	return state == JobStateDelivered || state == JobStateCancelled
}

// CanTransition valida si el paso from → to está permitido.
func CanTransition(from, to string) bool {
	if to == JobStateCancelled {
		return !IsTerminalState(from)
	}
	return transitions[from] == to
}

// IsTerminal indica si el trabajo ya no admite transiciones.
func (j *FulfillmentJob) IsTerminal() bool {
	return IsTerminalState(j.State)
}

// LineFor devuelve la línea del producto indicado, o nil si no existe.
func (j *FulfillmentJob) LineFor(productID string) *JobLineItem {
	for i := range j.LineItems {
		if j.LineItems[i].ProductID == productID {
			return &j.LineItems[i]
		}
	}
	return nil
}
