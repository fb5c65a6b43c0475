package fulfillment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacosecha/despacho-api/internal/application/fulfillment"
	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testProduct  = "yogurt-natural"
	testLocation = "planta-1"
	workerA      = "bodeguero-a"
	workerB      = "bodeguero-b"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newJobUC(t *testing.T) (*fulfillment.JobUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	ledger := inventory.NewReservationLedger()
	movements := inventory.NewRegisterMovementUseCase(store)
	uc := fulfillment.NewJobUseCase(store, store.Jobs(), store.Lots(), ledger, movements)
	return uc, store
}

// seedLot crea un lote directo en el store y devuelve su ID.
func seedLot(t *testing.T, store *memory.Store, id, producedOn, qty string) string {
	t.Helper()
	now := time.Now().UTC()
	err := store.Lots().Create(context.Background(), &entity.Lot{
		ID:         id,
		ProductID:  testProduct,
		LocationID: testLocation,
		ProducedOn: day(producedOn),
		Quantity:   dec(qty),
		Reserved:   decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return id
}

func createJob(t *testing.T, uc *fulfillment.JobUseCase, required string) *entity.FulfillmentJob {
	t.Helper()
	job, err := uc.CreateJob(context.Background(), fulfillment.CreateJobInput{
		Reference:  "pedido-test",
		LocationID: testLocation,
		LineItems: []entity.JobLineItem{
			{ProductID: testProduct, RequiredQuantity: dec(required)},
		},
	})
	require.NoError(t, err)
	return job
}

func lotByID(t *testing.T, store *memory.Store, id string) *entity.Lot {
	t.Helper()
	lot, err := store.Lots().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, lot)
	return lot
}

func alloc(entries ...entity.AllocationEntry) []entity.Allocation {
	return []entity.Allocation{{ProductID: testProduct, Entries: entries}}
}

// ──────────────────────────────────────────────────────────────────────────────
// Ciclo de vida completo
// ──────────────────────────────────────────────────────────────────────────────

func TestCicloCompleto_PendingHastaDelivered(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "5")
	lotB := seedLot(t, store, "lote-b", "2024-01-03", "5")

	job := createJob(t, uc, "7")
	assert.Equal(t, entity.JobStatePending, job.State)

	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	// La sugerencia FIFO agota el lote antiguo y completa con el nuevo.
	suggestions, err := uc.SuggestAllocations(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Len(t, suggestions[0].Suggested.Entries, 2)
	assert.Equal(t, lotA, suggestions[0].Suggested.Entries[0].LotID)
	assert.True(t, suggestions[0].Suggested.Entries[0].Quantity.Equal(dec("5")))
	assert.Equal(t, lotB, suggestions[0].Suggested.Entries[1].LotID)
	assert.True(t, suggestions[0].Suggested.Entries[1].Quantity.Equal(dec("2")))
	assert.True(t, suggestions[0].Shortfall.IsZero())

	err = uc.ConfirmPreparation(ctx, job.ID, workerA, []entity.Allocation{suggestions[0].Suggested})
	require.NoError(t, err)

	assert.True(t, lotByID(t, store, lotA).Reserved.Equal(dec("5")))
	assert.True(t, lotByID(t, store, lotB).Reserved.Equal(dec("2")))

	_, err = uc.Transition(ctx, job.ID, entity.JobStateInTransit)
	require.NoError(t, err)
	_, err = uc.Transition(ctx, job.ID, entity.JobStateDelivered)
	require.NoError(t, err)

	// La entrega descuenta cantidad y reserva a la vez.
	a := lotByID(t, store, lotA)
	assert.True(t, a.Quantity.IsZero())
	assert.True(t, a.Reserved.IsZero())
	b := lotByID(t, store, lotB)
	assert.True(t, b.Quantity.Equal(dec("3")))
	assert.True(t, b.Reserved.IsZero())

	final, err := uc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateDelivered, final.State)
}

func TestTransicion_SaltarseEstados_Rechazada(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "2")

	// pending → in_transit no existe.
	_, err := uc.Transition(ctx, job.ID, entity.JobStateInTransit)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, entity.JobStatePending, invalid.From)

	// pending → delivered tampoco.
	_, err = uc.Transition(ctx, job.ID, entity.JobStateDelivered)
	require.ErrorAs(t, err, &invalid)
}

func TestTransicion_EstadoTerminal_Rechazada(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "2")

	_, err := uc.Transition(ctx, job.ID, entity.JobStateCancelled)
	require.NoError(t, err, "cancelar desde pending debe permitirse")

	// Un trabajo cancelado no admite más transiciones, ni siquiera cancelarse otra vez.
	_, err = uc.Transition(ctx, job.ID, entity.JobStateCancelled)
	var invalid *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim: dueño único
// ──────────────────────────────────────────────────────────────────────────────

func TestClaim_DosTrabajadoresConcurrentes_SoloUnoGana(t *testing.T) {
	uc, store := newJobUC(t)
	seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, worker := range []string{workerA, workerB} {
		wg.Add(1)
		go func(i int, worker string) {
			defer wg.Done()
			errs[i] = uc.Claim(context.Background(), job.ID, worker)
		}(i, worker)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *domain.ConcurrencyConflictError
		require.ErrorAs(t, err, &conflict, "el perdedor debe recibir conflicto, no otro error")
		conflicts++
	}
	assert.Equal(t, 1, successes, "exactamente un trabajador gana el claim")
	assert.Equal(t, 1, conflicts, "el otro recibe el conflicto")

	claimed, err := uc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateClaimed, claimed.State)
	require.NotNil(t, claimed.ClaimedBy)
}

func TestClaim_TrabajoInexistente_NotFound(t *testing.T) {
	uc, _ := newJobUC(t)
	err := uc.Claim(context.Background(), "no-existe", workerA)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// ConfirmPreparation: validación, reserva todo-o-nada
// ──────────────────────────────────────────────────────────────────────────────

func TestConfirm_SoloElDuenoPuedeConfirmar(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "2")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	err := uc.ConfirmPreparation(ctx, job.ID, workerB,
		alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("2")}))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.True(t, lotByID(t, store, lotA).Reserved.IsZero(), "no debe quedar reserva")
}

func TestConfirm_AsignacionExcedeElLote_Rechazada(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "3")
	job := createJob(t, uc, "2")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	// Pedir 4 de un lote con 3: la validación señala el lote ofensor.
	job2 := createJob(t, uc, "4")
	require.NoError(t, uc.Claim(ctx, job2.ID, workerA))
	err := uc.ConfirmPreparation(ctx, job2.ID, workerA,
		alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("4")}))
	var over *domain.OverAllocationError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, lotA, over.LotID)
	assert.True(t, lotByID(t, store, lotA).Reserved.IsZero())
}

func TestConfirm_TodoONada_LiberaLoReservadoDelIntento(t *testing.T) {
	store := memory.NewStore()
	ledger := inventory.NewReservationLedger()
	movements := inventory.NewRegisterMovementUseCase(store)
	uc := fulfillment.NewJobUseCase(store, store.Jobs(), store.Lots(), ledger, movements)
	ctx := context.Background()

	lotA := seedLot(t, store, "lote-a", "2024-01-01", "10")
	now := time.Now().UTC()
	require.NoError(t, store.Lots().Create(ctx, &entity.Lot{
		ID: "lote-otro", ProductID: "mantequilla", LocationID: testLocation,
		ProducedOn: day("2024-01-02"), Quantity: dec("1"), Reserved: decimal.Zero,
		CreatedAt: now, UpdatedAt: now,
	}))

	job, err := uc.CreateJob(ctx, fulfillment.CreateJobInput{
		LocationID: testLocation,
		LineItems: []entity.JobLineItem{
			{ProductID: testProduct, RequiredQuantity: dec("5")},
			{ProductID: "mantequilla", RequiredQuantity: dec("3")}, // solo hay 1
		},
	})
	require.NoError(t, err)
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	err = uc.ConfirmPreparation(ctx, job.ID, workerA, []entity.Allocation{
		{ProductID: testProduct, Entries: []entity.AllocationEntry{{LotID: lotA, Quantity: dec("5")}}},
		{ProductID: "mantequilla", Entries: []entity.AllocationEntry{{LotID: "lote-otro", Quantity: dec("3")}}},
	})
	var over *domain.OverAllocationError
	require.ErrorAs(t, err, &over, "la segunda línea no cabe en su lote")

	// La primera línea se había reservado y debe quedar liberada.
	assert.True(t, lotByID(t, store, lotA).Reserved.IsZero(),
		"un fallo en cualquier línea libera lo reservado por las demás")

	unchanged, err := uc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStateClaimed, unchanged.State, "el estado no cambia")
	assert.Empty(t, unchanged.Allocations)
}

func TestConfirm_AsignacionIncompleta_ReportaDeficit(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "5")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	err := uc.ConfirmPreparation(ctx, job.ID, workerA,
		alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("3")}))
	var shortfall *domain.ShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.True(t, shortfall.Required.Equal(dec("5")))
	assert.True(t, shortfall.Allocated.Equal(dec("3")))
}

func TestConfirm_CarreraPorElMismoStock_SoloUnTrabajoReserva(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "3")

	// Dos trabajos de 2 unidades compiten por 3 disponibles.
	job1 := createJob(t, uc, "2")
	job2 := createJob(t, uc, "2")
	require.NoError(t, uc.Claim(ctx, job1.ID, workerA))
	require.NoError(t, uc.Claim(ctx, job2.ID, workerB))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	confirm := func(i int, jobID, worker string) {
		defer wg.Done()
		errs[i] = uc.ConfirmPreparation(context.Background(), jobID, worker,
			alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("2")}))
	}
	wg.Add(2)
	go confirm(0, job1.ID, workerA)
	go confirm(1, job2.ID, workerB)
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	require.Equal(t, 1, successes, "solo una de las dos confirmaciones puede reservar")

	lot := lotByID(t, store, lotA)
	assert.True(t, lot.Reserved.Equal(dec("2")), "reservado exactamente lo del ganador")
	assert.True(t, lot.Reserved.LessThanOrEqual(lot.Quantity), "nunca se sobrevende el lote")
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancelación
// ──────────────────────────────────────────────────────────────────────────────

func TestCancelar_TrabajoPreparado_LiberaLasReservas(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "4")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))
	require.NoError(t, uc.ConfirmPreparation(ctx, job.ID, workerA,
		alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("4")})))
	require.True(t, lotByID(t, store, lotA).Reserved.Equal(dec("4")))

	_, err := uc.Transition(ctx, job.ID, entity.JobStateCancelled)
	require.NoError(t, err)

	lot := lotByID(t, store, lotA)
	assert.True(t, lot.Reserved.IsZero(), "cancelar devuelve el stock al disponible")
	assert.True(t, lot.Quantity.Equal(dec("10")), "la cantidad física no cambia")
}

func TestCancelar_TrabajoEntregado_Rechazado(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	lotA := seedLot(t, store, "lote-a", "2024-01-01", "10")
	job := createJob(t, uc, "4")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))
	require.NoError(t, uc.ConfirmPreparation(ctx, job.ID, workerA,
		alloc(entity.AllocationEntry{LotID: lotA, Quantity: dec("4")})))
	_, err := uc.Transition(ctx, job.ID, entity.JobStateInTransit)
	require.NoError(t, err)
	_, err = uc.Transition(ctx, job.ID, entity.JobStateDelivered)
	require.NoError(t, err)

	_, err = uc.Transition(ctx, job.ID, entity.JobStateCancelled)
	var invalid *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid, "un trabajo entregado no puede cancelarse")
}

// ──────────────────────────────────────────────────────────────────────────────
// Sugerencias
// ──────────────────────────────────────────────────────────────────────────────

func TestSugerencias_ReportanDeficitSinBloquear(t *testing.T) {
	uc, store := newJobUC(t)
	ctx := context.Background()
	seedLot(t, store, "lote-a", "2024-01-01", "3")
	job := createJob(t, uc, "5")
	require.NoError(t, uc.Claim(ctx, job.ID, workerA))

	suggestions, err := uc.SuggestAllocations(ctx, job.ID)
	require.NoError(t, err, "el déficit no es error: se informa para decisión humana")
	require.Len(t, suggestions, 1)
	assert.True(t, suggestions[0].Suggested.Total().Equal(dec("3")), "se sugiere lo que hay")
	assert.True(t, suggestions[0].Shortfall.Equal(dec("2")), "y se reporta lo que falta")
}

func TestCreateJob_ValidaLineas(t *testing.T) {
	uc, _ := newJobUC(t)
	ctx := context.Background()

	_, err := uc.CreateJob(ctx, fulfillment.CreateJobInput{LocationID: testLocation})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "sin líneas")

	_, err = uc.CreateJob(ctx, fulfillment.CreateJobInput{
		LocationID: testLocation,
		LineItems: []entity.JobLineItem{
			{ProductID: testProduct, RequiredQuantity: dec("1")},
			{ProductID: testProduct, RequiredQuantity: dec("2")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "producto duplicado en líneas")

	_, err = uc.CreateJob(ctx, fulfillment.CreateJobInput{
		LocationID: testLocation,
		LineItems:  []entity.JobLineItem{{ProductID: testProduct, RequiredQuantity: dec("0")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "cantidad no positiva")
}
