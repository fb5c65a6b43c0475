package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

// StockQueryUseCase consultas de solo lectura sobre lotes y movimientos.
type StockQueryUseCase struct {
	lots      repository.LotRepository
	movements repository.StockMovementRepository
}

// NewStockQueryUseCase construye el caso de uso.
func NewStockQueryUseCase(lots repository.LotRepository, movements repository.StockMovementRepository) *StockQueryUseCase {
	return &StockQueryUseCase{lots: lots, movements: movements}
}

// StockSummary totales de un producto en una ubicación más el detalle por lote.
type StockSummary struct {
	ProductID      string
	LocationID     string
	TotalQuantity  decimal.Decimal
	TotalReserved  decimal.Decimal
	TotalAvailable decimal.Decimal
	Lots           []*entity.Lot
}

// GetStock devuelve los lotes FIFO de un producto en una ubicación con los
// totales agregados. Un producto sin lotes devuelve totales en cero, no 404:
// la ausencia de stock es un estado válido.
func (uc *StockQueryUseCase) GetStock(ctx context.Context, productID, locationID string) (*StockSummary, error) {
	if productID == "" || locationID == "" {
		return nil, domain.ErrInvalidInput
	}
	lots, err := uc.lots.ListByProductLocation(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	reserved := decimal.Zero
	for _, l := range lots {
		reserved = reserved.Add(l.Reserved)
	}
	return &StockSummary{
		ProductID:      productID,
		LocationID:     locationID,
		TotalQuantity:  entity.TotalStock(lots),
		TotalReserved:  reserved,
		TotalAvailable: entity.TotalAvailable(lots),
		Lots:           lots,
	}, nil
}

// GetLot devuelve un lote por ID.
func (uc *StockQueryUseCase) GetLot(ctx context.Context, lotID string) (*entity.Lot, error) {
	lot, err := uc.lots.GetByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, domain.ErrNotFound
	}
	return lot, nil
}

// ListMovements devuelve el registro de auditoría aplicando los filtros.
func (uc *StockQueryUseCase) ListMovements(ctx context.Context, filter repository.MovementFilter) ([]*entity.StockMovement, error) {
	return uc.movements.List(ctx, filter)
}
