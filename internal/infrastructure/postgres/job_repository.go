package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo implementación de JobRepository sobre PostgreSQL (pool o tx).
// Las líneas y asignaciones confirmadas viven embebidas como JSONB en la fila
// del trabajo (auditoría/replay); los lotes solo se referencian por ID.
type JobRepo struct {
	q Querier
}

// NewJobRepository construye el adaptador. Pasar pool o tx (Querier).
func NewJobRepository(q Querier) *JobRepo {
	return &JobRepo{q: q}
}

const jobColumns = `id, reference, location_id, state, claimed_by, line_items, allocations, created_at, updated_at`

// ── representación JSONB ──────────────────────────────────────────────────────

type lineItemJSON struct {
	ProductID        string          `json:"product_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
}

type allocationEntryJSON struct {
	LotID    string          `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type allocationJSON struct {
	ProductID string                `json:"product_id"`
	Entries   []allocationEntryJSON `json:"entries"`
}

func marshalLineItems(items []entity.JobLineItem) ([]byte, error) {
	out := make([]lineItemJSON, len(items))
	for i, li := range items {
		out[i] = lineItemJSON{ProductID: li.ProductID, RequiredQuantity: li.RequiredQuantity}
	}
	return json.Marshal(out)
}

func marshalAllocations(allocs []entity.Allocation) ([]byte, error) {
	if allocs == nil {
		return nil, nil
	}
	out := make([]allocationJSON, len(allocs))
	for i, a := range allocs {
		entries := make([]allocationEntryJSON, len(a.Entries))
		for j, e := range a.Entries {
			entries[j] = allocationEntryJSON{LotID: e.LotID, Quantity: e.Quantity}
		}
		out[i] = allocationJSON{ProductID: a.ProductID, Entries: entries}
	}
	return json.Marshal(out)
}

func unmarshalJob(lineItems, allocations []byte, job *entity.FulfillmentJob) error {
	var lines []lineItemJSON
	if err := json.Unmarshal(lineItems, &lines); err != nil {
		return fmt.Errorf("line_items: %w", err)
	}
	job.LineItems = make([]entity.JobLineItem, len(lines))
	for i, li := range lines {
		job.LineItems[i] = entity.JobLineItem{ProductID: li.ProductID, RequiredQuantity: li.RequiredQuantity}
	}
	if len(allocations) == 0 {
		return nil
	}
	var allocs []allocationJSON
	if err := json.Unmarshal(allocations, &allocs); err != nil {
		return fmt.Errorf("allocations: %w", err)
	}
	job.Allocations = make([]entity.Allocation, len(allocs))
	for i, a := range allocs {
		entries := make([]entity.AllocationEntry, len(a.Entries))
		for j, e := range a.Entries {
			entries[j] = entity.AllocationEntry{LotID: e.LotID, Quantity: e.Quantity}
		}
		job.Allocations[i] = entity.Allocation{ProductID: a.ProductID, Entries: entries}
	}
	return nil
}

// ── operaciones ───────────────────────────────────────────────────────────────

// Create inserta un trabajo nuevo.
func (r *JobRepo) Create(ctx context.Context, job *entity.FulfillmentJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	lines, err := marshalLineItems(job.LineItems)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	allocs, err := marshalAllocations(job.Allocations)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	query := `
		INSERT INTO fulfillment_jobs (id, reference, location_id, state, claimed_by, line_items, allocations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.q.Exec(ctx, query,
		job.ID, job.Reference, job.LocationID, job.State, job.ClaimedBy,
		lines, allocs, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetByID obtiene un trabajo por ID; nil si no existe.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*entity.FulfillmentJob, error) {
	query := `SELECT ` + jobColumns + ` FROM fulfillment_jobs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate obtiene el trabajo y bloquea su fila (SELECT FOR UPDATE).
func (r *JobRepo) GetForUpdate(ctx context.Context, id string) (*entity.FulfillmentJob, error) {
	query := `SELECT ` + jobColumns + ` FROM fulfillment_jobs WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *JobRepo) getOne(ctx context.Context, query, id string) (*entity.FulfillmentJob, error) {
	job, err := scanJob(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List devuelve trabajos filtrando por estado (vacío = todos), en orden de
// creación ascendente (la cola se atiende en orden de llegada).
func (r *JobRepo) List(ctx context.Context, state string, limit, offset int) ([]*entity.FulfillmentJob, error) {
	query := `SELECT ` + jobColumns + ` FROM fulfillment_jobs`
	args := []any{}
	if state != "" {
		query += ` WHERE state = $1 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
		args = append(args, state, limit, offset)
	} else {
		query += ` ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var list []*entity.FulfillmentJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		list = append(list, job)
	}
	return list, rows.Err()
}

// Claim asigna el trabajo con guarda de dueño único: solo aplica si sigue
// pending y sin claimed_by. El primer escritor gana.
func (r *JobRepo) Claim(ctx context.Context, jobID, workerID string) (bool, error) {
	query := `
		UPDATE fulfillment_jobs
		SET state = $3, claimed_by = $2, updated_at = now()
		WHERE id = $1 AND state = $4 AND claimed_by IS NULL`
	tag, err := r.q.Exec(ctx, query, jobID, workerID, entity.JobStateClaimed, entity.JobStatePending)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateState cambia el estado solo si el actual coincide con from.
func (r *JobRepo) UpdateState(ctx context.Context, jobID, from, to string) (bool, error) {
	query := `
		UPDATE fulfillment_jobs SET state = $3, updated_at = now()
		WHERE id = $1 AND state = $2`
	tag, err := r.q.Exec(ctx, query, jobID, from, to)
	if err != nil {
		return false, fmt.Errorf("update job state: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SaveAllocations persiste las asignaciones confirmadas del trabajo.
func (r *JobRepo) SaveAllocations(ctx context.Context, jobID string, allocs []entity.Allocation) error {
	payload, err := marshalAllocations(allocs)
	if err != nil {
		return fmt.Errorf("save allocations: %w", err)
	}
	query := `UPDATE fulfillment_jobs SET allocations = $2, updated_at = now() WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, jobID, payload)
	if err != nil {
		return fmt.Errorf("save allocations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.FulfillmentJob, error) {
	var j entity.FulfillmentJob
	var claimedBy *string
	var lineItems, allocations []byte
	if err := row.Scan(
		&j.ID, &j.Reference, &j.LocationID, &j.State, &claimedBy,
		&lineItems, &allocations, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.ClaimedBy = claimedBy
	if err := unmarshalJob(lineItems, allocations, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
