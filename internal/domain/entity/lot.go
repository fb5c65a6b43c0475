package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot representa un lote de producción fechado de un producto en una ubicación.
// El stock físico es Quantity; Reserved es la porción prometida a trabajos de
// despacho aún no entregados. Invariante: 0 <= Reserved <= Quantity.
type Lot struct {
	ID         string
	ProductID  string
	LocationID string
	ProducedOn time.Time // fecha de producción (solo día, UTC)
	Quantity   decimal.Decimal
	Reserved   decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available devuelve la cantidad disponible para nuevas reservas o salidas.
func (l *Lot) Available() decimal.Decimal {
	return l.Quantity.Sub(l.Reserved)
}

// TotalStock suma la cantidad física de un conjunto de lotes.
func TotalStock(lots []*Lot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Quantity)
	}
	return total
}

// TotalAvailable suma la cantidad disponible (no reservada) de un conjunto de lotes.
func TotalAvailable(lots []*Lot) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Available())
	}
	return total
}
