package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/allocation"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/internal/domain/repository"
	"github.com/lacosecha/despacho-api/pkg/metrics"
)

// RegisterMovementUseCase aplica movimientos de stock (entrada, salida,
// ajuste) sobre los lotes de un producto, de forma transaccional y con
// escrituras condicionales, manteniendo el invariante quantity >= reserved.
// Cada movimiento deja exactamente un registro de auditoría por lote tocado.
type RegisterMovementUseCase struct {
	txRunner TxRunner
}

// NewRegisterMovementUseCase construye el caso de uso.
func NewRegisterMovementUseCase(txRunner TxRunner) *RegisterMovementUseCase {
	return &RegisterMovementUseCase{txRunner: txRunner}
}

// MovementInputDTO entrada para registrar un movimiento de stock.
// entrada: ProductID, LocationID, Quantity > 0, ProducedOn obligatorio.
// salida: Quantity > 0; LotID o ProducedOn apuntan a un lote concreto,
// ambos vacíos = FIFO sobre los lotes del producto.
// ajuste: LotID obligatorio, Quantity >= 0 (cantidad resultante, no delta).
type MovementInputDTO struct {
	UserID     string
	ProductID  string
	LocationID string
	LotID      string
	Type       string
	Quantity   decimal.Decimal
	ProducedOn *time.Time
	Reason     string
}

// RegisterMovement valida la entrada, abre una transacción y aplica el
// movimiento según su tipo. Commit solo si todo el movimiento aplica; un
// fallo parcial (p. ej. una salida FIFO que no alcanza) revierte todo.
func (uc *RegisterMovementUseCase) RegisterMovement(ctx context.Context, input MovementInputDTO) error {
	switch input.Type {
	case entity.MovementTypeEntrada:
		if input.ProductID == "" || input.LocationID == "" || input.ProducedOn == nil {
			return domain.ErrInvalidInput
		}
		if !input.Quantity.GreaterThan(decimal.Zero) {
			return domain.ErrInvalidInput
		}
	case entity.MovementTypeSalida:
		if input.ProductID == "" || input.LocationID == "" {
			return domain.ErrInvalidInput
		}
		if !input.Quantity.GreaterThan(decimal.Zero) {
			return domain.ErrInvalidInput
		}
	case entity.MovementTypeAjuste:
		if input.LotID == "" || input.Quantity.LessThan(decimal.Zero) {
			return domain.ErrInvalidInput
		}
	default:
		return domain.ErrInvalidInput
	}

	now := time.Now().UTC()
	err := uc.txRunner.Run(ctx, func(
		lots repository.LotRepository,
		movements repository.StockMovementRepository,
		_ repository.JobRepository,
	) error {
		switch input.Type {
		case entity.MovementTypeEntrada:
			return uc.doEntrada(ctx, lots, movements, input, now)
		case entity.MovementTypeSalida:
			return uc.doSalida(ctx, lots, movements, input, now)
		case entity.MovementTypeAjuste:
			return uc.doAjuste(ctx, lots, movements, input, now)
		}
		return domain.ErrInvalidInput
	})
	if err == nil {
		metrics.MovementsTotal.WithLabelValues(input.Type).Inc()
	}
	return err
}

// doEntrada crea el lote (product, location, producedOn) o fusiona la
// cantidad en el existente. Ante una creación concurrente del mismo lote
// (violación de unicidad) reintenta como fusión.
func (uc *RegisterMovementUseCase) doEntrada(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	input MovementInputDTO,
	now time.Time,
) error {
	producedOn := truncateToDay(*input.ProducedOn)

	lot, err := lots.GetByProducedOn(ctx, input.ProductID, input.LocationID, producedOn)
	if err != nil {
		return err
	}
	if lot == nil {
		lot = &entity.Lot{
			ID:         uuid.New().String(),
			ProductID:  input.ProductID,
			LocationID: input.LocationID,
			ProducedOn: producedOn,
			Quantity:   input.Quantity,
			Reserved:   decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = lots.Create(ctx, lot)
		if errors.Is(err, domain.ErrDuplicate) {
			// Otro proceso creó el mismo lote entre la lectura y el insert.
			lot, err = lots.GetByProducedOn(ctx, input.ProductID, input.LocationID, producedOn)
			if err != nil {
				return err
			}
			if lot == nil {
				return fmt.Errorf("entrada: lote duplicado no encontrado tras reintento")
			}
			if err := lots.AddQuantity(ctx, lot.ID, input.Quantity); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	} else {
		if err := lots.AddQuantity(ctx, lot.ID, input.Quantity); err != nil {
			return err
		}
	}

	return movements.Create(ctx, &entity.StockMovement{
		LotID:      lot.ID,
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Type:       entity.MovementTypeEntrada,
		Quantity:   input.Quantity,
		Reason:     input.Reason,
		CreatedAt:  now,
		CreatedBy:  input.UserID,
	})
}

// doSalida retira stock físico. Con lote puntual (LotID o ProducedOn) la
// resta se rechaza con NegativeStockError si cortaría en lo reservado; sin
// lote se recorren los lotes en orden FIFO consumiendo solo lo retirable
// (quantity - reserved) de cada uno.
func (uc *RegisterMovementUseCase) doSalida(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	input MovementInputDTO,
	now time.Time,
) error {
	if input.LotID != "" || input.ProducedOn != nil {
		return uc.salidaPuntual(ctx, lots, movements, input, now)
	}
	return uc.salidaFIFO(ctx, lots, movements, input, now)
}

func (uc *RegisterMovementUseCase) salidaPuntual(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	input MovementInputDTO,
	now time.Time,
) error {
	var lot *entity.Lot
	var err error
	if input.LotID != "" {
		lot, err = lots.GetByID(ctx, input.LotID)
	} else {
		lot, err = lots.GetByProducedOn(ctx, input.ProductID, input.LocationID, truncateToDay(*input.ProducedOn))
	}
	if err != nil {
		return err
	}
	if lot == nil {
		return domain.ErrNotFound
	}
	if lot.ProductID != input.ProductID || lot.LocationID != input.LocationID {
		return domain.ErrInvalidInput
	}

	applied, err := lots.ReduceQuantity(ctx, lot.ID, input.Quantity)
	if err != nil {
		return err
	}
	if !applied {
		return &domain.NegativeStockError{
			LotID:    lot.ID,
			Quantity: lot.Quantity.Sub(input.Quantity),
			Reserved: lot.Reserved,
		}
	}

	return movements.Create(ctx, &entity.StockMovement{
		LotID:      lot.ID,
		ProductID:  input.ProductID,
		LocationID: input.LocationID,
		Type:       entity.MovementTypeSalida,
		Quantity:   input.Quantity.Neg(),
		Reason:     input.Reason,
		CreatedAt:  now,
		CreatedBy:  input.UserID,
	})
}

func (uc *RegisterMovementUseCase) salidaFIFO(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	input MovementInputDTO,
	now time.Time,
) error {
	list, err := lots.ListByProductLocation(ctx, input.ProductID, input.LocationID)
	if err != nil {
		return err
	}

	remaining := input.Quantity
	for _, lot := range list {
		if remaining.IsZero() {
			break
		}
		removable := lot.Available() // solo lo no prometido a trabajos
		if removable.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := decimal.Min(remaining, removable)
		applied, err := lots.ReduceQuantity(ctx, lot.ID, take)
		if err != nil {
			return err
		}
		if !applied {
			// Una escritura concurrente consumió el retirable entre la
			// lectura y el update; se revierte el movimiento completo.
			return &domain.ConcurrencyConflictError{
				Resource: "lot",
				ID:       lot.ID,
				Detail:   "salida FIFO perdió la carrera contra otra escritura",
			}
		}
		if err := movements.Create(ctx, &entity.StockMovement{
			LotID:      lot.ID,
			ProductID:  input.ProductID,
			LocationID: input.LocationID,
			Type:       entity.MovementTypeSalida,
			Quantity:   take.Neg(),
			Reason:     input.Reason,
			CreatedAt:  now,
			CreatedBy:  input.UserID,
		}); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	if remaining.GreaterThan(decimal.Zero) {
		return &domain.ShortfallError{
			ProductID: input.ProductID,
			Required:  input.Quantity,
			Allocated: input.Quantity.Sub(remaining),
		}
	}
	return nil
}

// doAjuste fija la cantidad del lote a un valor explícito. Rechazado con
// NegativeStockError si el valor cae por debajo de lo reservado. El registro
// de auditoría guarda el delta aplicado, no el valor absoluto.
func (uc *RegisterMovementUseCase) doAjuste(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	input MovementInputDTO,
	now time.Time,
) error {
	lot, err := lots.GetByID(ctx, input.LotID)
	if err != nil {
		return err
	}
	if lot == nil {
		return domain.ErrNotFound
	}

	applied, err := lots.SetQuantity(ctx, lot.ID, input.Quantity)
	if err != nil {
		return err
	}
	if !applied {
		return &domain.NegativeStockError{
			LotID:    lot.ID,
			Quantity: input.Quantity,
			Reserved: lot.Reserved,
		}
	}

	return movements.Create(ctx, &entity.StockMovement{
		LotID:      lot.ID,
		ProductID:  lot.ProductID,
		LocationID: lot.LocationID,
		Type:       entity.MovementTypeAjuste,
		Quantity:   input.Quantity.Sub(lot.Quantity),
		Reason:     input.Reason,
		CreatedAt:  now,
		CreatedBy:  input.UserID,
	})
}

// DeliverCommitInTx descuenta definitivamente el stock de las asignaciones de
// un trabajo entregado: quantity y reserved bajan juntos por cada entrada.
// Se ejecuta con los repositorios del caller (misma transacción que la
// transición a delivered); es el único camino que retira stock ligado a un
// trabajo de despacho.
func (uc *RegisterMovementUseCase) DeliverCommitInTx(
	ctx context.Context,
	lots repository.LotRepository,
	movements repository.StockMovementRepository,
	job *entity.FulfillmentJob,
	now time.Time,
) error {
	deliveredBy := ""
	if job.ClaimedBy != nil {
		deliveredBy = *job.ClaimedBy
	}
	for _, alloc := range job.Allocations {
		for _, e := range alloc.Entries {
			if e.Quantity.IsZero() {
				continue
			}
			applied, err := lots.CommitDelivery(ctx, e.LotID, e.Quantity)
			if err != nil {
				return fmt.Errorf("entregar lote %s: %w", e.LotID, err)
			}
			if !applied {
				return &domain.ConcurrencyConflictError{
					Resource: "lot",
					ID:       e.LotID,
					Detail:   "la entrega excede la cantidad o la reserva del lote",
				}
			}
			if err := movements.Create(ctx, &entity.StockMovement{
				LotID:      e.LotID,
				ProductID:  alloc.ProductID,
				LocationID: job.LocationID,
				Type:       entity.MovementTypeEntrega,
				Quantity:   e.Quantity.Neg(),
				Reason:     "entrega trabajo " + job.ID,
				JobID:      job.ID,
				CreatedAt:  now,
				CreatedBy:  deliveredBy,
			}); err != nil {
				return err
			}
		}
	}
	metrics.MovementsTotal.WithLabelValues(entity.MovementTypeEntrega).Inc()
	return nil
}

// SuggestFIFO devuelve la preselección FIFO para un requerimiento puntual
// (consulta de solo lectura, sin transacción).
func SuggestFIFO(ctx context.Context, lots repository.LotRepository, productID, locationID string, required decimal.Decimal) (entity.Allocation, error) {
	list, err := lots.ListByProductLocation(ctx, productID, locationID)
	if err != nil {
		return entity.Allocation{}, err
	}
	return allocation.PreselectFIFO(productID, list, required), nil
}

// truncateToDay normaliza una fecha de producción a día UTC; los lotes se
// identifican por día, no por instante.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
