package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacosecha/despacho-api/internal/application/inventory"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
	"github.com/lacosecha/despacho-api/internal/infrastructure/memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testProduct  = "queso-fresco"
	testLocation = "planta-1"
	testUser     = "operario-1"
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

func newMovementUC(t *testing.T) (*inventory.RegisterMovementUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return inventory.NewRegisterMovementUseCase(store), store
}

// entrada registra una entrada y falla el test si no aplica.
func entrada(t *testing.T, uc *inventory.RegisterMovementUseCase, qty, producedOn string) {
	t.Helper()
	d := day(producedOn)
	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID:     testUser,
		ProductID:  testProduct,
		LocationID: testLocation,
		Type:       entity.MovementTypeEntrada,
		Quantity:   dec(qty),
		ProducedOn: &d,
	})
	require.NoError(t, err, "la entrada debe registrarse sin error")
}

func lotsOf(t *testing.T, store *memory.Store) []*entity.Lot {
	t.Helper()
	lots, err := store.Lots().ListByProductLocation(context.Background(), testProduct, testLocation)
	require.NoError(t, err)
	return lots
}

func movementsOf(t *testing.T, store *memory.Store) []*entity.StockMovement {
	t.Helper()
	list, err := store.Movements().List(context.Background(), repository.MovementFilter{
		ProductID: testProduct, Limit: 1000,
	})
	require.NoError(t, err)
	return list
}

// ──────────────────────────────────────────────────────────────────────────────
// Entrada
// ──────────────────────────────────────────────────────────────────────────────

func TestEntrada_CreaLoteNuevo(t *testing.T) {
	uc, store := newMovementUC(t)

	entrada(t, uc, "10", "2024-01-01")

	lots := lotsOf(t, store)
	require.Len(t, lots, 1, "debe existir un lote")
	assert.True(t, lots[0].Quantity.Equal(dec("10")), "cantidad del lote")
	assert.True(t, lots[0].Reserved.IsZero(), "lote nuevo sin reservas")
	assert.Equal(t, day("2024-01-01"), lots[0].ProducedOn)

	movs := movementsOf(t, store)
	require.Len(t, movs, 1, "una entrada deja exactamente un registro de auditoría")
	assert.Equal(t, entity.MovementTypeEntrada, movs[0].Type)
	assert.True(t, movs[0].Quantity.Equal(dec("10")))
}

func TestEntrada_MismoDiaFusionaCantidad(t *testing.T) {
	uc, store := newMovementUC(t)

	entrada(t, uc, "10", "2024-01-01")
	entrada(t, uc, "5", "2024-01-01")

	lots := lotsOf(t, store)
	require.Len(t, lots, 1, "la misma fecha de producción no crea un segundo lote")
	assert.True(t, lots[0].Quantity.Equal(dec("15")), "las cantidades se fusionan")

	movs := movementsOf(t, store)
	assert.Len(t, movs, 2, "cada entrada deja su propio registro")
}

func TestEntrada_DiasDistintosCreanLotesDistintos(t *testing.T) {
	uc, store := newMovementUC(t)

	entrada(t, uc, "10", "2024-01-01")
	entrada(t, uc, "5", "2024-01-03")

	lots := lotsOf(t, store)
	require.Len(t, lots, 2)
	// Orden FIFO: el más antiguo primero.
	assert.Equal(t, day("2024-01-01"), lots[0].ProducedOn)
	assert.Equal(t, day("2024-01-03"), lots[1].ProducedOn)
}

func TestEntrada_SinFechaNiCantidadPositiva_Rechazada(t *testing.T) {
	uc, _ := newMovementUC(t)

	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		Type: entity.MovementTypeEntrada, Quantity: dec("10"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "entrada sin produced_on es inválida")

	d := day("2024-01-01")
	err = uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		Type: entity.MovementTypeEntrada, Quantity: dec("0"), ProducedOn: &d,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "entrada con cantidad cero es inválida")
}

// ──────────────────────────────────────────────────────────────────────────────
// Salida
// ──────────────────────────────────────────────────────────────────────────────

func TestSalidaFIFO_ConsumePrimeroElLoteMasAntiguo(t *testing.T) {
	uc, store := newMovementUC(t)
	entrada(t, uc, "5", "2024-01-01")
	entrada(t, uc, "5", "2024-01-03")

	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		Type: entity.MovementTypeSalida, Quantity: dec("7"),
	})
	require.NoError(t, err)

	lots := lotsOf(t, store)
	require.Len(t, lots, 2)
	assert.True(t, lots[0].Quantity.IsZero(), "el lote antiguo se agota primero")
	assert.True(t, lots[1].Quantity.Equal(dec("3")), "el resto sale del lote nuevo")
}

func TestSalidaFIFO_NoTocaLoReservado(t *testing.T) {
	uc, store := newMovementUC(t)
	entrada(t, uc, "10", "2024-01-01")

	lots := lotsOf(t, store)
	applied, err := store.Lots().Reserve(context.Background(), lots[0].ID, dec("6"))
	require.NoError(t, err)
	require.True(t, applied)

	// Disponible = 4; pedir 5 debe fallar con déficit y revertir todo.
	err = uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		Type: entity.MovementTypeSalida, Quantity: dec("5"),
	})
	var shortfall *domain.ShortfallError
	require.ErrorAs(t, err, &shortfall, "la salida que excede el disponible reporta déficit")
	assert.True(t, shortfall.Required.Equal(dec("5")))
	assert.True(t, shortfall.Allocated.Equal(dec("4")))
}

func TestSalidaPuntual_CortaEnReservado_Rechazada(t *testing.T) {
	uc, store := newMovementUC(t)
	entrada(t, uc, "10", "2024-01-01")

	lots := lotsOf(t, store)
	applied, err := store.Lots().Reserve(context.Background(), lots[0].ID, dec("6"))
	require.NoError(t, err)
	require.True(t, applied)

	err = uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		LotID: lots[0].ID,
		Type:  entity.MovementTypeSalida, Quantity: dec("5"),
	})
	var negative *domain.NegativeStockError
	require.ErrorAs(t, err, &negative,
		"una salida puntual que invade lo reservado debe rechazarse")
	assert.Equal(t, lots[0].ID, negative.LotID)

	// El lote queda intacto.
	after := lotsOf(t, store)
	assert.True(t, after[0].Quantity.Equal(dec("10")))
	assert.True(t, after[0].Reserved.Equal(dec("6")))
}

func TestSalida_LoteInexistente_NotFound(t *testing.T) {
	uc, _ := newMovementUC(t)

	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		LotID: "no-existe",
		Type:  entity.MovementTypeSalida, Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// Ajuste
// ──────────────────────────────────────────────────────────────────────────────

func TestAjuste_FijaCantidadYAuditaElDelta(t *testing.T) {
	uc, store := newMovementUC(t)
	entrada(t, uc, "10", "2024-01-01")
	lots := lotsOf(t, store)

	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, LotID: lots[0].ID,
		Type: entity.MovementTypeAjuste, Quantity: dec("7"),
		Reason: "conteo físico",
	})
	require.NoError(t, err)

	after := lotsOf(t, store)
	assert.True(t, after[0].Quantity.Equal(dec("7")))

	movs := movementsOf(t, store)
	require.Len(t, movs, 2)
	ajuste := movs[len(movs)-1]
	assert.Equal(t, entity.MovementTypeAjuste, ajuste.Type)
	assert.True(t, ajuste.Quantity.Equal(dec("-3")), "el registro guarda el delta, no el valor fijado")
	assert.Equal(t, "conteo físico", ajuste.Reason)
}

func TestAjuste_PorDebajoDeLoReservado_Rechazado(t *testing.T) {
	uc, store := newMovementUC(t)
	entrada(t, uc, "10", "2024-01-01")
	lots := lotsOf(t, store)

	applied, err := store.Lots().Reserve(context.Background(), lots[0].ID, dec("6"))
	require.NoError(t, err)
	require.True(t, applied)

	err = uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, LotID: lots[0].ID,
		Type: entity.MovementTypeAjuste, Quantity: dec("5"),
	})
	var negative *domain.NegativeStockError
	require.ErrorAs(t, err, &negative,
		"un ajuste por debajo de lo reservado debe rechazarse")
	assert.True(t, negative.Reserved.Equal(dec("6")))
}

func TestAjuste_CantidadNegativa_Invalida(t *testing.T) {
	uc, _ := newMovementUC(t)

	err := uc.RegisterMovement(context.Background(), inventory.MovementInputDTO{
		UserID: testUser, LotID: "cualquiera",
		Type: entity.MovementTypeAjuste, Quantity: dec("-1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ──────────────────────────────────────────────────────────────────────────────
// Conservación: cantidad final = entradas - salidas - entregas
// ──────────────────────────────────────────────────────────────────────────────

func TestConservacion_SumaDeMovimientosIgualaStockFinal(t *testing.T) {
	uc, store := newMovementUC(t)
	ctx := context.Background()

	entrada(t, uc, "10", "2024-01-01")

	err := uc.RegisterMovement(ctx, inventory.MovementInputDTO{
		UserID: testUser, ProductID: testProduct, LocationID: testLocation,
		Type: entity.MovementTypeSalida, Quantity: dec("4"),
	})
	require.NoError(t, err)

	// Reservar 3 y entregarlos vía commit de entrega.
	lots := lotsOf(t, store)
	applied, err := store.Lots().Reserve(ctx, lots[0].ID, dec("3"))
	require.NoError(t, err)
	require.True(t, applied)

	worker := testUser
	job := &entity.FulfillmentJob{
		ID: "job-1", LocationID: testLocation, State: entity.JobStateInTransit,
		ClaimedBy: &worker,
		Allocations: []entity.Allocation{{
			ProductID: testProduct,
			Entries:   []entity.AllocationEntry{{LotID: lots[0].ID, Quantity: dec("3")}},
		}},
	}
	err = uc.DeliverCommitInTx(ctx, store.Lots(), store.Movements(), job, time.Now().UTC())
	require.NoError(t, err)

	after := lotsOf(t, store)
	assert.True(t, after[0].Quantity.Equal(dec("3")), "10 - 4 - 3 = 3")
	assert.True(t, after[0].Reserved.IsZero(), "la entrega consume la reserva")

	// La suma de los movimientos reproduce la cantidad final.
	total := decimal.Zero
	for _, m := range movementsOf(t, store) {
		total = total.Add(m.Quantity)
	}
	assert.True(t, total.Equal(dec("3")),
		"el registro de auditoría debe reconstruir el stock: suma = %s", total)

	// Y la entrega quedó ligada al trabajo.
	var entrega *entity.StockMovement
	for _, m := range movementsOf(t, store) {
		if m.Type == entity.MovementTypeEntrega {
			entrega = m
		}
	}
	require.NotNil(t, entrega)
	assert.Equal(t, "job-1", entrega.JobID)
}
