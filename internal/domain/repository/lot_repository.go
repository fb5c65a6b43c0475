package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
)

// LotRepository define el puerto de persistencia de lotes.
//
// Las operaciones condicionales son escrituras atómicas con guarda (un solo
// UPDATE con WHERE sobre el estado esperado): devuelven applied=false cuando
// la guarda no se cumple, por ejemplo porque una reserva concurrente consumió
// el disponible. Nunca leer-y-escribir sin guarda sobre quantity/reserved.
type LotRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Lot, error)
	// ListByProductLocation devuelve los lotes de un producto en una ubicación,
	// ordenados FIFO (producedOn asc, id asc como desempate).
	ListByProductLocation(ctx context.Context, productID, locationID string) ([]*entity.Lot, error)
	GetByProducedOn(ctx context.Context, productID, locationID string, producedOn time.Time) (*entity.Lot, error)
	Create(ctx context.Context, lot *entity.Lot) error

	// Reserve incrementa reserved si reserved + qty <= quantity.
	Reserve(ctx context.Context, lotID string, qty decimal.Decimal) (applied bool, err error)
	// Release decrementa reserved si reserved >= qty.
	Release(ctx context.Context, lotID string, qty decimal.Decimal) (applied bool, err error)
	// AddQuantity suma stock físico (entrada sobre lote existente).
	AddQuantity(ctx context.Context, lotID string, qty decimal.Decimal) error
	// ReduceQuantity resta stock físico si quantity - qty >= reserved.
	ReduceQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (applied bool, err error)
	// SetQuantity fija la cantidad (ajuste) si qty >= reserved.
	SetQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (applied bool, err error)
	// CommitDelivery descuenta quantity y reserved a la vez si ambos alcanzan.
	CommitDelivery(ctx context.Context, lotID string, qty decimal.Decimal) (applied bool, err error)
}
