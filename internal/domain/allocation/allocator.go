// Package allocation implementa la selección y validación de asignaciones de
// lotes (servicio de dominio, puro y sin efectos secundarios). La preselección
// consume primero los lotes más antiguos (FIFO por fecha de producción); toda
// asignación —sugerida o editada a mano— pasa por Validate antes de poder
// confirmarse: no existe camino de commit que la evite.
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// PreselectFIFO propone una asignación recorriendo los lotes del más antiguo
// al más reciente y tomando de cada uno min(restante, disponible). Si los
// lotes se agotan antes de cubrir lo requerido devuelve una asignación
// parcial; el caller detecta el faltante comparando Total() con required.
// Desempate para fechas iguales: ID de lote ascendente (determinista).
func PreselectFIFO(productID string, lots []*entity.Lot, required decimal.Decimal) entity.Allocation {
	alloc := entity.Allocation{ProductID: productID}
	if required.LessThanOrEqual(decimal.Zero) {
		return alloc
	}

	sorted := sortFIFO(lots)
	remaining := required
	for _, lot := range sorted {
		if remaining.IsZero() {
			break
		}
		available := lot.Available()
		if available.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(remaining, available)
		alloc.Entries = append(alloc.Entries, entity.AllocationEntry{LotID: lot.ID, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return alloc
}

// Validate verifica una asignación contra los lotes actuales y la cantidad
// requerida. Devuelve nil solo si la suma es exactamente la requerida y
// ninguna entrada excede el disponible de su lote. Entradas duplicadas del
// mismo lote se acumulan; un lote desconocido cuenta como disponible cero.
func Validate(alloc entity.Allocation, lots []*entity.Lot, required decimal.Decimal) error {
	available := make(map[string]decimal.Decimal, len(lots))
	for _, lot := range lots {
		available[lot.ID] = lot.Available()
	}

	total := decimal.Zero
	taken := make(map[string]decimal.Decimal, len(alloc.Entries))
	for _, e := range alloc.Entries {
		if e.Quantity.LessThan(decimal.Zero) {
			return domain.ErrInvalidInput
		}
		taken[e.LotID] = taken[e.LotID].Add(e.Quantity)
		total = total.Add(e.Quantity)
	}

	for lotID, qty := range taken {
		if qty.GreaterThan(available[lotID]) {
			return &domain.OverAllocationError{
				ProductID: alloc.ProductID,
				LotID:     lotID,
				Requested: qty,
				Limit:     available[lotID],
			}
		}
	}
	if total.GreaterThan(required) {
		return &domain.OverAllocationError{ProductID: alloc.ProductID, Requested: total, Limit: required}
	}
	if total.LessThan(required) {
		return &domain.ShortfallError{ProductID: alloc.ProductID, Required: required, Allocated: total}
	}
	return nil
}

// sortFIFO devuelve una copia ordenada por fecha de producción ascendente,
// con desempate por ID. No muta el slice de entrada.
func sortFIFO(lots []*entity.Lot) []*entity.Lot {
	sorted := make([]*entity.Lot, len(lots))
	copy(sorted, lots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProducedOn.Equal(sorted[j].ProducedOn) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].ProducedOn.Before(sorted[j].ProducedOn)
	})
	return sorted
}
