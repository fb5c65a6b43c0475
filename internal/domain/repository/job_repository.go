package repository

import (
	"context"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// JobRepository define el puerto de persistencia de trabajos de despacho.
//
// Claim y UpdateState son escrituras condicionales: el primer escritor gana y
// los demás reciben applied=false (el caller lo traduce a conflicto 409).
type JobRepository interface {
	Create(ctx context.Context, job *entity.FulfillmentJob) error
	GetByID(ctx context.Context, id string) (*entity.FulfillmentJob, error)
	// GetForUpdate bloquea la fila del trabajo dentro de una transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.FulfillmentJob, error)
	// List filtra por estado (vacío = todos), orden de creación ascendente.
	List(ctx context.Context, state string, limit, offset int) ([]*entity.FulfillmentJob, error)

	// Claim asigna el trabajo si sigue pending y sin dueño.
	Claim(ctx context.Context, jobID, workerID string) (applied bool, err error)
	// UpdateState cambia el estado solo si el actual coincide con from.
	UpdateState(ctx context.Context, jobID, from, to string) (applied bool, err error)
	// SaveAllocations persiste las asignaciones confirmadas (auditoría/replay).
	SaveAllocations(ctx context.Context, jobID string, allocs []entity.Allocation) error
}
