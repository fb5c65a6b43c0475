package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo implementación de LotRepository sobre PostgreSQL (pool o tx).
//
// Todas las mutaciones de quantity/reserved son UPDATEs condicionales de una
// sola sentencia: la guarda va en el WHERE y el resultado se lee de las filas
// afectadas. Nunca leer-y-escribir sin guarda.
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

const lotColumns = `id, product_id, location_id, produced_on, quantity, reserved, created_at, updated_at`

// GetByID obtiene un lote por ID; nil si no existe.
func (r *LotRepo) GetByID(ctx context.Context, id string) (*entity.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	lot, err := scanLot(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return lot, nil
}

// ListByProductLocation devuelve los lotes en orden FIFO (fecha de
// producción ascendente, ID como desempate determinista).
func (r *LotRepo) ListByProductLocation(ctx context.Context, productID, locationID string) ([]*entity.Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE product_id = $1 AND location_id = $2
		ORDER BY produced_on ASC, id ASC`
	rows, err := r.q.Query(ctx, query, productID, locationID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var list []*entity.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		list = append(list, lot)
	}
	return list, rows.Err()
}

// GetByProducedOn busca el lote de un día de producción concreto; nil si no existe.
func (r *LotRepo) GetByProducedOn(ctx context.Context, productID, locationID string, producedOn time.Time) (*entity.Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE product_id = $1 AND location_id = $2 AND produced_on = $3`
	lot, err := scanLot(r.q.QueryRow(ctx, query, productID, locationID, producedOn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot by produced_on: %w", err)
	}
	return lot, nil
}

// Create inserta un lote nuevo. Devuelve domain.ErrDuplicate si ya existe un
// lote para el mismo (producto, ubicación, fecha): el caller fusiona.
func (r *LotRepo) Create(ctx context.Context, lot *entity.Lot) error {
	query := `
		INSERT INTO lots (id, product_id, location_id, produced_on, quantity, reserved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		lot.ID, lot.ProductID, lot.LocationID, lot.ProducedOn,
		lot.Quantity, lot.Reserved, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create lot: %w", err)
	}
	return nil
}

// Reserve incrementa reserved solo si cabe en quantity.
func (r *LotRepo) Reserve(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE lots SET reserved = reserved + $2, updated_at = now()
		WHERE id = $1 AND reserved + $2 <= quantity`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return false, fmt.Errorf("reserve lot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release decrementa reserved solo si hay reservado suficiente.
func (r *LotRepo) Release(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE lots SET reserved = reserved - $2, updated_at = now()
		WHERE id = $1 AND reserved >= $2`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return false, fmt.Errorf("release lot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AddQuantity suma stock físico (entrada sobre lote existente).
func (r *LotRepo) AddQuantity(ctx context.Context, lotID string, qty decimal.Decimal) error {
	query := `
		UPDATE lots SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return fmt.Errorf("add quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReduceQuantity resta stock físico sin invadir lo reservado.
func (r *LotRepo) ReduceQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE lots SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity - $2 >= reserved`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return false, fmt.Errorf("reduce quantity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetQuantity fija la cantidad (ajuste) si no cae por debajo de lo reservado.
func (r *LotRepo) SetQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE lots SET quantity = $2, updated_at = now()
		WHERE id = $1 AND $2 >= reserved`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return false, fmt.Errorf("set quantity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CommitDelivery descuenta quantity y reserved a la vez (entrega de trabajo).
func (r *LotRepo) CommitDelivery(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	query := `
		UPDATE lots SET quantity = quantity - $2, reserved = reserved - $2, updated_at = now()
		WHERE id = $1 AND reserved >= $2 AND quantity >= $2`
	tag, err := r.q.Exec(ctx, query, lotID, qty)
	if err != nil {
		return false, fmt.Errorf("commit delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanLot(row pgx.Row) (*entity.Lot, error) {
	var l entity.Lot
	if err := row.Scan(
		&l.ID, &l.ProductID, &l.LocationID, &l.ProducedOn,
		&l.Quantity, &l.Reserved, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
