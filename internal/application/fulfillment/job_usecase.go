// Package fulfillment implementa el ciclo de vida de los trabajos de
// despacho: claim de dueño único, sugerencia y confirmación de asignaciones
// de lotes, y transiciones de estado hasta la entrega o cancelación.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/allocation"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
	"github.com/lacosecha/despacho-api/pkg/metrics"
)

// JobUseCase orquesta los trabajos de despacho. Las lecturas usan los
// repositorios atados al pool; toda mutación multi-fila corre dentro del
// TxRunner. El motor no reintenta nada: ante un conflicto el caller decide.
type JobUseCase struct {
	txRunner  inventory.TxRunner
	jobs      repository.JobRepository
	lots      repository.LotRepository
	ledger    *inventory.ReservationLedger
	movements *inventory.RegisterMovementUseCase
}

// NewJobUseCase construye el caso de uso.
func NewJobUseCase(
	txRunner inventory.TxRunner,
	jobs repository.JobRepository,
	lots repository.LotRepository,
	ledger *inventory.ReservationLedger,
	movements *inventory.RegisterMovementUseCase,
) *JobUseCase {
	return &JobUseCase{
		txRunner:  txRunner,
		jobs:      jobs,
		lots:      lots,
		ledger:    ledger,
		movements: movements,
	}
}

// CreateJobInput datos para encolar un trabajo de despacho.
type CreateJobInput struct {
	Reference  string
	LocationID string
	LineItems  []entity.JobLineItem
}

// CreateJob encola un trabajo nuevo en estado pending.
func (uc *JobUseCase) CreateJob(ctx context.Context, input CreateJobInput) (*entity.FulfillmentJob, error) {
	if input.LocationID == "" || len(input.LineItems) == 0 {
		return nil, domain.ErrInvalidInput
	}
	seen := make(map[string]bool, len(input.LineItems))
	for _, li := range input.LineItems {
		if li.ProductID == "" || !li.RequiredQuantity.GreaterThan(decimal.Zero) || seen[li.ProductID] {
			return nil, domain.ErrInvalidInput
		}
		seen[li.ProductID] = true
	}

	now := time.Now().UTC()
	job := &entity.FulfillmentJob{
		ID:         uuid.New().String(),
		Reference:  input.Reference,
		LocationID: input.LocationID,
		State:      entity.JobStatePending,
		LineItems:  input.LineItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob devuelve un trabajo por ID.
func (uc *JobUseCase) GetJob(ctx context.Context, jobID string) (*entity.FulfillmentJob, error) {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// ListJobs lista trabajos filtrando por estado (vacío = todos).
func (uc *JobUseCase) ListJobs(ctx context.Context, state string, limit, offset int) ([]*entity.FulfillmentJob, error) {
	return uc.jobs.List(ctx, state, limit, offset)
}

// Claim asigna el trabajo al trabajador mediante una escritura condicional:
// solo aplica si el trabajo sigue pending y sin dueño. El primer escritor
// gana; los demás reciben ConcurrencyConflictError (HTTP 409). El guard vive
// en la capa de almacenamiento, nunca en la UI.
func (uc *JobUseCase) Claim(ctx context.Context, jobID, workerID string) error {
	if workerID == "" {
		return domain.ErrInvalidInput
	}
	applied, err := uc.jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrNotFound
	}
	metrics.ClaimConflictsTotal.Inc()
	detail := "el trabajo ya no está pending"
	if job.ClaimedBy != nil {
		detail = "ya reclamado por otro trabajador"
	}
	return &domain.ConcurrencyConflictError{Resource: "job", ID: jobID, Detail: detail}
}

// AllocationSuggestion es la preselección FIFO de una línea, para revisión
// del trabajador antes de confirmar.
type AllocationSuggestion struct {
	ProductID string
	Required  decimal.Decimal
	Suggested entity.Allocation
	Shortfall decimal.Decimal // > 0 si el disponible actual no alcanza
}

// SuggestAllocations calcula la preselección FIFO por línea del trabajo.
// Es solo una sugerencia sobre el disponible del momento: el trabajador puede
// editarla y todo vuelve a validarse al confirmar.
func (uc *JobUseCase) SuggestAllocations(ctx context.Context, jobID string) ([]AllocationSuggestion, error) {
	job, err := uc.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, &domain.InvalidTransitionError{JobID: jobID, From: job.State, To: entity.JobStatePrepared}
	}

	suggestions := make([]AllocationSuggestion, 0, len(job.LineItems))
	for _, li := range job.LineItems {
		lots, err := uc.lots.ListByProductLocation(ctx, li.ProductID, job.LocationID)
		if err != nil {
			return nil, err
		}
		alloc := allocation.PreselectFIFO(li.ProductID, lots, li.RequiredQuantity)
		shortfall := li.RequiredQuantity.Sub(alloc.Total())
		if shortfall.LessThan(decimal.Zero) {
			shortfall = decimal.Zero
		}
		suggestions = append(suggestions, AllocationSuggestion{
			ProductID: li.ProductID,
			Required:  li.RequiredQuantity,
			Suggested: alloc,
			Shortfall: shortfall,
		})
	}
	return suggestions, nil
}

// ConfirmPreparation valida las asignaciones (sugeridas o editadas) contra el
// estado actual de los lotes, reserva todas las líneas y pasa el trabajo a
// prepared, todo o nada: si cualquier línea falla, las reservas ya tomadas en
// este intento se liberan y el estado no cambia. El error resultante señala
// la línea o el lote ofensor para que el trabajador corrija sin reenviar todo.
func (uc *JobUseCase) ConfirmPreparation(ctx context.Context, jobID, workerID string, allocs []entity.Allocation) error {
	byProduct := make(map[string]entity.Allocation, len(allocs))
	for _, a := range allocs {
		if _, dup := byProduct[a.ProductID]; dup {
			return domain.ErrInvalidInput
		}
		byProduct[a.ProductID] = a
	}

	return uc.txRunner.Run(ctx, func(
		lots repository.LotRepository,
		_ repository.StockMovementRepository,
		jobs repository.JobRepository,
	) error {
		job, err := jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domain.ErrNotFound
		}
		if job.State != entity.JobStateClaimed {
			return &domain.InvalidTransitionError{JobID: jobID, From: job.State, To: entity.JobStatePrepared}
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != workerID {
			return domain.ErrForbidden
		}
		for productID := range byProduct {
			if job.LineFor(productID) == nil {
				return domain.ErrInvalidInput
			}
		}

		confirmed := make([]entity.Allocation, 0, len(job.LineItems))
		reserved := make([]entity.Allocation, 0, len(job.LineItems))
		for _, li := range job.LineItems {
			alloc, ok := byProduct[li.ProductID]
			if !ok {
				uc.releaseAll(ctx, lots, reserved)
				return &domain.ShortfallError{
					ProductID: li.ProductID,
					Required:  li.RequiredQuantity,
					Allocated: decimal.Zero,
				}
			}
			current, err := lots.ListByProductLocation(ctx, li.ProductID, job.LocationID)
			if err != nil {
				uc.releaseAll(ctx, lots, reserved)
				return err
			}
			if err := allocation.Validate(alloc, current, li.RequiredQuantity); err != nil {
				uc.releaseAll(ctx, lots, reserved)
				return err
			}
			if err := uc.ledger.Reserve(ctx, lots, alloc); err != nil {
				uc.releaseAll(ctx, lots, reserved)
				return err
			}
			reserved = append(reserved, alloc)
			confirmed = append(confirmed, alloc)
		}

		if err := jobs.SaveAllocations(ctx, jobID, confirmed); err != nil {
			uc.releaseAll(ctx, lots, reserved)
			return err
		}
		applied, err := jobs.UpdateState(ctx, jobID, entity.JobStateClaimed, entity.JobStatePrepared)
		if err != nil {
			uc.releaseAll(ctx, lots, reserved)
			return err
		}
		if !applied {
			uc.releaseAll(ctx, lots, reserved)
			return &domain.ConcurrencyConflictError{Resource: "job", ID: jobID, Detail: "el estado cambió durante la confirmación"}
		}
		metrics.JobTransitionsTotal.WithLabelValues(entity.JobStatePrepared).Inc()
		return nil
	})
}

// Transition aplica prepared → in_transit, in_transit → delivered o el paso a
// cancelled desde cualquier estado no terminal. La transición claimed →
// prepared no pasa por aquí: solo existe vía ConfirmPreparation, que es el
// único camino que reserva stock.
func (uc *JobUseCase) Transition(ctx context.Context, jobID, to string) (string, error) {
	switch to {
	case entity.JobStateInTransit, entity.JobStateDelivered, entity.JobStateCancelled:
	default:
		return "", domain.ErrInvalidInput
	}

	var newState string
	err := uc.txRunner.Run(ctx, func(
		lots repository.LotRepository,
		movements repository.StockMovementRepository,
		jobs repository.JobRepository,
	) error {
		job, err := jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domain.ErrNotFound
		}
		if !entity.CanTransition(job.State, to) {
			return &domain.InvalidTransitionError{JobID: jobID, From: job.State, To: to}
		}

		switch to {
		case entity.JobStateInTransit:
			if job.ClaimedBy == nil {
				return &domain.InvalidTransitionError{JobID: jobID, From: job.State, To: to}
			}
			// Sin efecto sobre stock: las reservas ya están tomadas.
		case entity.JobStateDelivered:
			if err := uc.movements.DeliverCommitInTx(ctx, lots, movements, job, time.Now().UTC()); err != nil {
				return err
			}
		case entity.JobStateCancelled:
			// Liberar las reservas antes de voltear el estado es limpieza
			// obligatoria; un fallo aborta la cancelación completa. Un trabajo
			// pending o claimed aún no tiene asignaciones guardadas.
			for _, alloc := range job.Allocations {
				if err := uc.ledger.Release(ctx, lots, alloc); err != nil {
					return fmt.Errorf("cancelar trabajo %s: %w", jobID, err)
				}
			}
		}

		applied, err := jobs.UpdateState(ctx, jobID, job.State, to)
		if err != nil {
			return err
		}
		if !applied {
			return &domain.ConcurrencyConflictError{Resource: "job", ID: jobID, Detail: "el estado cambió durante la transición"}
		}
		newState = to
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.JobTransitionsTotal.WithLabelValues(to).Inc()
	return newState, nil
}

// releaseAll libera las reservas ya tomadas en un intento de confirmación
// fallido. Los errores se ignoran: el rollback de la transacción deshace lo
// mismo; la compensación explícita mantiene correcto el comportamiento sobre
// stores sin transacciones (memoria).
func (uc *JobUseCase) releaseAll(ctx context.Context, lots repository.LotRepository, reserved []entity.Allocation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		_ = uc.ledger.Release(ctx, lots, reserved[i])
	}
}
