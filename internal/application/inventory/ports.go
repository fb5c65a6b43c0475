package inventory

import (
	"context"

	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando
// repositorios atados a esa tx. Garantiza atomicidad: si fn devuelve error,
// ninguna escritura persiste (rollback).
type TxRunner interface {
	Run(ctx context.Context, fn func(
		lots repository.LotRepository,
		movements repository.StockMovementRepository,
		jobs repository.JobRepository,
	) error) error
}
