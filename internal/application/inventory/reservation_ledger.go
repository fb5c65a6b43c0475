package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
	"github.com/lacosecha/despacho-api/pkg/metrics"
)

// ReservationLedger aplica y libera reservas de lotes. Es el único mecanismo
// que oculta disponible a otros trabajos; nunca toca la cantidad física.
//
// Los métodos reciben el LotRepository del caller para poder ejecutarse dentro
// de la transacción de quien compone (mismo patrón que los usecases que operan
// "in tx" con repos del llamador).
type ReservationLedger struct{}

// NewReservationLedger construye el ledger.
func NewReservationLedger() *ReservationLedger {
	return &ReservationLedger{}
}

// Reserve incrementa reserved en cada lote de la asignación mediante una
// escritura condicional por lote (reserved + X <= quantity). Si alguna falla
// porque una reserva concurrente consumió el disponible, libera lo ya
// reservado en este intento y devuelve el error: nunca persiste una reserva
// parcial. El rollback compensatorio hace el resultado correcto también fuera
// de una transacción SQL (p. ej. sobre el store en memoria).
func (l *ReservationLedger) Reserve(ctx context.Context, lots repository.LotRepository, alloc entity.Allocation) error {
	done := make([]entity.AllocationEntry, 0, len(alloc.Entries))
	for _, e := range alloc.Entries {
		if e.Quantity.IsZero() {
			continue
		}
		applied, err := lots.Reserve(ctx, e.LotID, e.Quantity)
		if err != nil {
			l.compensate(ctx, lots, done)
			return fmt.Errorf("reservar lote %s: %w", e.LotID, err)
		}
		if !applied {
			l.compensate(ctx, lots, done)
			metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
			return &domain.OverAllocationError{
				ProductID: alloc.ProductID,
				LotID:     e.LotID,
				Requested: e.Quantity,
				Limit:     l.currentAvailable(ctx, lots, e.LotID),
			}
		}
		done = append(done, e)
	}
	metrics.ReservationsTotal.WithLabelValues("committed").Inc()
	return nil
}

// Release devuelve al disponible las cantidades de una asignación. Se usa al
// cancelar un trabajo antes de la entrega; es limpieza obligatoria, no best
// effort: si un lote tiene menos reservado de lo que se libera hay una
// inconsistencia y se devuelve error para que la transacción no confirme.
func (l *ReservationLedger) Release(ctx context.Context, lots repository.LotRepository, alloc entity.Allocation) error {
	for _, e := range alloc.Entries {
		if e.Quantity.IsZero() {
			continue
		}
		applied, err := lots.Release(ctx, e.LotID, e.Quantity)
		if err != nil {
			return fmt.Errorf("liberar lote %s: %w", e.LotID, err)
		}
		if !applied {
			return &domain.ConcurrencyConflictError{
				Resource: "lot",
				ID:       e.LotID,
				Detail:   fmt.Sprintf("liberación de %s excede lo reservado", e.Quantity),
			}
		}
	}
	return nil
}

// compensate re-decrementa los lotes ya incrementados en un intento fallido.
// Errores aquí se ignoran: dentro de una transacción SQL el rollback del
// caller deshace todo de igual forma.
func (l *ReservationLedger) compensate(ctx context.Context, lots repository.LotRepository, done []entity.AllocationEntry) {
	for i := len(done) - 1; i >= 0; i-- {
		_, _ = lots.Release(ctx, done[i].LotID, done[i].Quantity)
	}
}

func (l *ReservationLedger) currentAvailable(ctx context.Context, lots repository.LotRepository, lotID string) decimal.Decimal {
	lot, err := lots.GetByID(ctx, lotID)
	if err != nil || lot == nil {
		return decimal.Zero
	}
	return lot.Available()
}
