// internal/service/inventory/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "inventory",
		Name:      "reservations_total",
		Help:      "Reservation attempts by outcome (reserved, insufficient_stock, error).",
	}, []string{"outcome"})

	reservationTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "inventory",
		Name:      "reservation_transitions_total",
		Help:      "Reservations leaving RESERVED by terminal state.",
	}, []string{"state"})

	expirySweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "atlas",
		Subsystem: "inventory",
		Name:      "expiry_sweep_duration_seconds",
		Help:      "Duration of a single expiry sweep pass.",
		Buckets:   prometheus.DefBuckets,
	})

	stockLowAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "inventory",
		Name:      "stock_low_alerts_total",
		Help:      "StockLow alert events published.",
	})
)
