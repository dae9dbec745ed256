package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// BillingMetrics records billing outcomes in Prometheus
type BillingMetrics struct {
	chargesTotal         *prometheus.CounterVec
	chargeAmountCents    *prometheus.CounterVec
	reconciliationsTotal *prometheus.CounterVec
	vaultCallsTotal      *prometheus.CounterVec
	vaultCallDuration    *prometheus.HistogramVec
	batchRunsTotal       *prometheus.CounterVec
	batchProcessedTotal  *prometheus.CounterVec
	batchFailedTotal     *prometheus.CounterVec
	batchDurationSeconds *prometheus.HistogramVec
}

var _ ports.BillingMetrics = (*BillingMetrics)(nil)

// NewBillingMetrics registers the billing collectors with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	f := promauto.With(reg)
	return &BillingMetrics{
		chargesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Total subscription charge attempts",
		}, []string{
			"source", // store_card, charge
			"status", // success, declined, unavailable, indeterminate
		}),

		// Only approved charges count toward revenue
		chargeAmountCents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_charge_amount_cents_total",
			Help: "Total approved charge amount in cents",
		}, []string{"source"}),

		reconciliationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_reconciliations_total",
			Help: "Charges whose outcome or ledger entry needs manual reconciliation",
		}, []string{"op"}),

		vaultCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_vault_calls_total",
			Help: "Total card vault calls",
		}, []string{"op", "status"}),

		// Buckets: 100ms to 30s (typical gateway latencies)
		vaultCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_vault_call_duration_seconds",
			Help:    "Card vault call latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),

		batchRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_batch_runs_total",
			Help: "Total batch runs",
		}, []string{"kind"}),

		batchProcessedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_batch_processed_total",
			Help: "Subscriptions processed by batch runs",
		}, []string{"kind"}),

		batchFailedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_batch_failed_total",
			Help: "Subscriptions that failed in batch runs",
		}, []string{"kind"}),

		batchDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_batch_duration_seconds",
			Help:    "Batch run duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
	}
}

// RecordCharge records a charge attempt
func (m *BillingMetrics) RecordCharge(source, status string, amountCents int64) {
	m.chargesTotal.WithLabelValues(source, status).Inc()
	if status == "success" {
		m.chargeAmountCents.WithLabelValues(source).Add(float64(amountCents))
	}
}

// RecordReconciliation counts a reconciliation-required fault
func (m *BillingMetrics) RecordReconciliation(op string) {
	m.reconciliationsTotal.WithLabelValues(op).Inc()
}

// RecordVaultCall records a card vault call
func (m *BillingMetrics) RecordVaultCall(op, status string, duration time.Duration) {
	m.vaultCallsTotal.WithLabelValues(op, status).Inc()
	m.vaultCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordBatch records a finished batch run
func (m *BillingMetrics) RecordBatch(kind string, processed, failed int, duration time.Duration) {
	m.batchRunsTotal.WithLabelValues(kind).Inc()
	m.batchProcessedTotal.WithLabelValues(kind).Add(float64(processed))
	m.batchFailedTotal.WithLabelValues(kind).Add(float64(failed))
	m.batchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}
