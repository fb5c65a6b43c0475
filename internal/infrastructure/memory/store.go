// Package memory implementa los repositorios del motor sobre mapas en
// memoria, con actualizaciones condicionales protegidas por mutex. Se usa en
// tests (incluidos los de concurrencia) y como implementación de referencia
// del contrato de los puertos: cada operación condicional es atómica.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
)

var (
	_ repository.LotRepository           = (*LotRepo)(nil)
	_ repository.JobRepository           = (*JobRepo)(nil)
	_ repository.StockMovementRepository = (*MovementRepo)(nil)
)

// Store contenedor en memoria de lotes, trabajos y movimientos. Los
// repositorios son vistas sobre el mismo store y comparten su mutex.
type Store struct {
	mu        sync.Mutex
	lots      map[string]*entity.Lot
	jobs      map[string]*entity.FulfillmentJob
	movements []*entity.StockMovement
}

// NewStore construye un store vacío.
func NewStore() *Store {
	return &Store{
		lots: make(map[string]*entity.Lot),
		jobs: make(map[string]*entity.FulfillmentJob),
	}
}

// Lots devuelve la vista LotRepository del store.
func (s *Store) Lots() *LotRepo { return &LotRepo{s: s} }

// Jobs devuelve la vista JobRepository del store.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

// Movements devuelve la vista StockMovementRepository del store.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

// Run implementa inventory.TxRunner sin transacciones reales: ejecuta fn con
// los repositorios del propio store. La atomicidad todo-o-nada la aportan las
// compensaciones explícitas de los usecases, que es justo lo que este store
// permite ejercitar en tests.
func (s *Store) Run(ctx context.Context, fn func(
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	jobs repository.JobRepository,
) error) error {
	return fn(s.Lots(), s.Movements(), s.Jobs())
}

// ── LotRepository ─────────────────────────────────────────────────────────────

// LotRepo vista de lotes del store.
type LotRepo struct{ s *Store }

func (r *LotRepo) GetByID(ctx context.Context, id string) (*entity.Lot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[id]
	if !ok {
		return nil, nil
	}
	return copyLot(lot), nil
}

func (r *LotRepo) ListByProductLocation(ctx context.Context, productID, locationID string) ([]*entity.Lot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*entity.Lot
	for _, lot := range r.s.lots {
		if lot.ProductID == productID && lot.LocationID == locationID {
			list = append(list, copyLot(lot))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ProducedOn.Equal(list[j].ProducedOn) {
			return list[i].ID < list[j].ID
		}
		return list[i].ProducedOn.Before(list[j].ProducedOn)
	})
	return list, nil
}

func (r *LotRepo) GetByProducedOn(ctx context.Context, productID, locationID string, producedOn time.Time) (*entity.Lot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, lot := range r.s.lots {
		if lot.ProductID == productID && lot.LocationID == locationID && lot.ProducedOn.Equal(producedOn) {
			return copyLot(lot), nil
		}
	}
	return nil, nil
}

func (r *LotRepo) Create(ctx context.Context, lot *entity.Lot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.lots {
		if existing.ProductID == lot.ProductID && existing.LocationID == lot.LocationID &&
			existing.ProducedOn.Equal(lot.ProducedOn) {
			return domain.ErrDuplicate
		}
	}
	if _, ok := r.s.lots[lot.ID]; ok {
		return domain.ErrDuplicate
	}
	r.s.lots[lot.ID] = copyLot(lot)
	return nil
}

func (r *LotRepo) Reserve(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok || lot.Reserved.Add(qty).GreaterThan(lot.Quantity) {
		return false, nil
	}
	lot.Reserved = lot.Reserved.Add(qty)
	lot.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *LotRepo) Release(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok || lot.Reserved.LessThan(qty) {
		return false, nil
	}
	lot.Reserved = lot.Reserved.Sub(qty)
	lot.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *LotRepo) AddQuantity(ctx context.Context, lotID string, qty decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok {
		return domain.ErrNotFound
	}
	lot.Quantity = lot.Quantity.Add(qty)
	lot.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LotRepo) ReduceQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok || lot.Quantity.Sub(qty).LessThan(lot.Reserved) {
		return false, nil
	}
	lot.Quantity = lot.Quantity.Sub(qty)
	lot.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *LotRepo) SetQuantity(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok || qty.LessThan(lot.Reserved) {
		return false, nil
	}
	lot.Quantity = qty
	lot.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *LotRepo) CommitDelivery(ctx context.Context, lotID string, qty decimal.Decimal) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[lotID]
	if !ok || lot.Reserved.LessThan(qty) || lot.Quantity.LessThan(qty) {
		return false, nil
	}
	lot.Quantity = lot.Quantity.Sub(qty)
	lot.Reserved = lot.Reserved.Sub(qty)
	lot.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ── JobRepository ─────────────────────────────────────────────────────────────

// JobRepo vista de trabajos del store.
type JobRepo struct{ s *Store }

func (r *JobRepo) Create(ctx context.Context, job *entity.FulfillmentJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.jobs[job.ID]; ok {
		return domain.ErrDuplicate
	}
	r.s.jobs[job.ID] = copyJob(job)
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*entity.FulfillmentJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(job), nil
}

// GetForUpdate no bloquea fila en memoria; las escrituras condicionales
// posteriores protegen contra carreras de todos modos.
func (r *JobRepo) GetForUpdate(ctx context.Context, id string) (*entity.FulfillmentJob, error) {
	return r.GetByID(ctx, id)
}

func (r *JobRepo) List(ctx context.Context, state string, limit, offset int) ([]*entity.FulfillmentJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*entity.FulfillmentJob
	for _, job := range r.s.jobs {
		if state == "" || job.State == state {
			list = append(list, copyJob(job))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r *JobRepo) Claim(ctx context.Context, jobID, workerID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok || job.State != entity.JobStatePending || job.ClaimedBy != nil {
		return false, nil
	}
	w := workerID
	job.ClaimedBy = &w
	job.State = entity.JobStateClaimed
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *JobRepo) UpdateState(ctx context.Context, jobID, from, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok || job.State != from {
		return false, nil
	}
	job.State = to
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *JobRepo) SaveAllocations(ctx context.Context, jobID string, allocs []entity.Allocation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Allocations = copyAllocations(allocs)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// ── StockMovementRepository ───────────────────────────────────────────────────

// MovementRepo vista de movimientos del store.
type MovementRepo struct{ s *Store }

func (r *MovementRepo) Create(ctx context.Context, movement *entity.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := *movement
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	r.s.movements = append(r.s.movements, &m)
	return nil
}

func (r *MovementRepo) List(ctx context.Context, filter repository.MovementFilter) ([]*entity.StockMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*entity.StockMovement
	for _, m := range r.s.movements {
		if filter.ProductID != "" && m.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != "" && m.LocationID != filter.LocationID {
			continue
		}
		if filter.From != nil && m.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && m.CreatedAt.After(*filter.To) {
			continue
		}
		copied := *m
		list = append(list, &copied)
	}
	if filter.Offset >= len(list) {
		return nil, nil
	}
	list = list[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(list) {
		list = list[:filter.Limit]
	}
	return list, nil
}

// ── copias defensivas ─────────────────────────────────────────────────────────

func copyLot(l *entity.Lot) *entity.Lot {
	c := *l
	return &c
}

func copyJob(j *entity.FulfillmentJob) *entity.FulfillmentJob {
	c := *j
	if j.ClaimedBy != nil {
		w := *j.ClaimedBy
		c.ClaimedBy = &w
	}
	c.LineItems = append([]entity.JobLineItem(nil), j.LineItems...)
	c.Allocations = copyAllocations(j.Allocations)
	return &c
}

func copyAllocations(allocs []entity.Allocation) []entity.Allocation {
	if allocs == nil {
		return nil
	}
	out := make([]entity.Allocation, len(allocs))
	for i, a := range allocs {
		out[i] = entity.Allocation{
			ProductID: a.ProductID,
			Entries:   append([]entity.AllocationEntry(nil), a.Entries...),
		}
	}
	return out
}
