// Package metrics expone los contadores Prometheus del motor de despacho.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MovementsTotal movimientos de stock aplicados, por tipo.
	MovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "despacho_stock_movements_total",
		Help: "Movimientos de stock aplicados (entrada, salida, ajuste, entrega).",
	}, []string{"type"})

	// ReservationsTotal intentos de reserva, por resultado.
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "despacho_reservations_total",
		Help: "Intentos de reserva de lotes (committed o rejected).",
	}, []string{"result"})

	// ClaimConflictsTotal claims perdidos por carrera entre trabajadores.
	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "despacho_claim_conflicts_total",
		Help: "Claims de trabajos rechazados porque otro trabajador ganó la carrera.",
	})

	// JobTransitionsTotal transiciones de estado confirmadas, por estado destino.
	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "despacho_job_transitions_total",
		Help: "Transiciones de estado de trabajos de despacho, por destino.",
	}, []string{"to"})
)
