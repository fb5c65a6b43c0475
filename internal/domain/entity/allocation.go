package entity

import "github.com/shopspring/decimal"

// AllocationEntry es la cantidad tomada de un lote concreto.
type AllocationEntry struct {
	LotID    string
	Quantity decimal.Decimal
}

// Allocation es la combinación exacta de lotes que satisface una línea de un
// trabajo de despacho. Solo referencia IDs de lote; nunca retiene los lotes.
type Allocation struct {
	ProductID string
	Entries   []AllocationEntry
}

// Total suma las cantidades de todas las entradas.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range a.Entries {
		total = total.Add(e.Quantity)
	}
	return total
}
