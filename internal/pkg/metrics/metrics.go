// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心编排流程的业务指标，全部通过 promauto 注册到默认 Registry，
// 由各服务 main 中的 /metrics (promhttp) 暴露。
var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "orders_total",
		Help:      "Checkout saga outcomes by terminal status.",
	}, []string{"outcome"})

	PaymentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "payment_retries_total",
		Help:      "Transient payment failures that were retried.",
	})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "payment",
		Name:      "refunds_total",
		Help:      "Refunds issued, by trigger (compensation or return).",
	}, []string{"trigger"})

	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "inventory",
		Name:      "reservations_expired_total",
		Help:      "Reservations reclaimed by the expiry sweeper.",
	})

	ReturnsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "returns",
		Name:      "received_total",
		Help:      "Return receive operations by outcome.",
	}, []string{"outcome"})
)
