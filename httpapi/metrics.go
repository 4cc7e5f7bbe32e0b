package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the broker's payment path
// (SPEC_FULL.md §4.7 expansion). Observability is ambient tooling, not a
// feature the spec's non-goals exclude.
var (
	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clawlet_payments_total",
		Help: "Total payment attempts by outcome status.",
	}, []string{"status"})

	paymentAmountUSDC = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clawlet_payment_amount_usdc",
		Help:    "Distribution of settled payment amounts in USDC.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 50, 100},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clawlet_active_sessions",
		Help: "Number of in-flight two-phase payment sessions.",
	})
)

func observePaymentOutcome(status string, amountUSDC float64) {
	paymentsTotal.WithLabelValues(status).Inc()
	if amountUSDC > 0 {
		paymentAmountUSDC.Observe(amountUSDC)
	}
}
