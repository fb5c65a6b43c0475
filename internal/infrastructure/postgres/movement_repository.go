package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*MovementRepo)(nil)

// MovementRepo implementación de StockMovementRepository sobre PostgreSQL.
// Solo INSERT y SELECT: el registro de movimientos es append-only.
type MovementRepo struct {
	q Querier
}

// NewStockMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// Create inserta un movimiento de auditoría.
func (r *MovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO stock_movements (id, lot_id, product_id, location_id, type, quantity, reason, job_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.LotID, m.ProductID, m.LocationID, m.Type,
		m.Quantity, m.Reason, nullIfEmpty(m.JobID), m.CreatedAt, nullIfEmpty(m.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("create movement: %w", err)
	}
	return nil
}

// List devuelve movimientos aplicando los filtros presentes, más recientes
// primero. Los filtros vacíos/nil no restringen.
func (r *MovementRepo) List(ctx context.Context, f repository.MovementFilter) ([]*entity.StockMovement, error) {
	query := `
		SELECT id, lot_id, product_id, location_id, type, quantity, reason, job_id, created_at, created_by
		FROM stock_movements
		WHERE 1=1`
	args := []any{}
	argPos := 1

	if f.ProductID != "" {
		query += fmt.Sprintf(" AND product_id = $%d", argPos)
		args = append(args, f.ProductID)
		argPos++
	}
	if f.LocationID != "" {
		query += fmt.Sprintf(" AND location_id = $%d", argPos)
		args = append(args, f.LocationID)
		argPos++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *f.To)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var list []*entity.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var m entity.StockMovement
	var jobID, createdBy *string
	if err := row.Scan(
		&m.ID, &m.LotID, &m.ProductID, &m.LocationID, &m.Type,
		&m.Quantity, &m.Reason, &jobID, &m.CreatedAt, &createdBy,
	); err != nil {
		return nil, err
	}
	if jobID != nil {
		m.JobID = *jobID
	}
	if createdBy != nil {
		m.CreatedBy = *createdBy
	}
	return &m, nil
}

// nullIfEmpty mapea "" a NULL en columnas opcionales.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
