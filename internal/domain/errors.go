package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrForbidden    = errors.New("acceso denegado")
)

// ShortfallError indica que la asignación no alcanza la cantidad requerida
// (o que no hay stock disponible suficiente para reservarla).
type ShortfallError struct {
	ProductID string
	Required  decimal.Decimal
	Allocated decimal.Decimal
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("asignación insuficiente para producto %s: requerido %s, asignado %s",
		e.ProductID, e.Required, e.Allocated)
}

// OverAllocationError indica que la asignación excede la cantidad requerida,
// o que una entrada excede el disponible de su lote. LotID vacío significa
// exceso sobre el total requerido.
type OverAllocationError struct {
	ProductID string
	LotID     string
	Requested decimal.Decimal
	Limit     decimal.Decimal // requerido total, o disponible del lote si LotID != ""
}

func (e *OverAllocationError) Error() string {
	if e.LotID != "" {
		return fmt.Sprintf("asignación excede el disponible del lote %s (producto %s): pedido %s, disponible %s",
			e.LotID, e.ProductID, e.Requested, e.Limit)
	}
	return fmt.Sprintf("asignación excede lo requerido para producto %s: asignado %s, requerido %s",
		e.ProductID, e.Requested, e.Limit)
}

// ConcurrencyConflictError indica que una escritura condicional perdió la
// carrera contra otro trabajador (claim duplicado, transición concurrente).
type ConcurrencyConflictError struct {
	Resource string // "job" | "lot"
	ID       string
	Detail   string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("conflicto de concurrencia en %s %s: %s", e.Resource, e.ID, e.Detail)
}

// InvalidTransitionError indica una transición de estado no permitida.
type InvalidTransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transición inválida del trabajo %s: %s → %s", e.JobID, e.From, e.To)
}

// NegativeStockError indica que un movimiento dejaría la cantidad de un lote
// por debajo de lo ya reservado (stock prometido a un trabajo).
type NegativeStockError struct {
	LotID    string
	Quantity decimal.Decimal // cantidad resultante que se intentó fijar
	Reserved decimal.Decimal
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("el lote %s quedaría con cantidad %s por debajo de lo reservado %s",
		e.LotID, e.Quantity, e.Reserved)
}
