package repository

import (
	"context"
	"time"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// MovementFilter filtros para listar movimientos de auditoría.
type MovementFilter struct {
	ProductID  string
	LocationID string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// StockMovementRepository define el puerto de persistencia del registro de
// auditoría de movimientos. Solo inserción y lectura: los movimientos nunca
// se modifican después de creados.
type StockMovementRepository interface {
	Create(ctx context.Context, movement *entity.StockMovement) error
	List(ctx context.Context, filter MovementFilter) ([]*entity.StockMovement, error)
}
