package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jklgtravel/mailer/internal/domain"
)

// MailMetrics holds Prometheus metrics for the email queue.
// All Record* methods are safe to call on a nil *MailMetrics.
type MailMetrics struct {
	// Enqueue path
	Enqueued *prometheus.CounterVec

	// Delivery path
	Deliveries       *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	ClaimsLost       prometheus.Counter
	Recovered        prometheus.Counter
	StoreErrors      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	LastCycle        prometheus.Gauge

	// Queue state
	QueueDepth *prometheus.GaugeVec

	// Supervision
	WorkerRestarts *prometheus.CounterVec
}

// NewMailMetrics creates and registers all mail metrics on reg.
// A nil reg registers on the default Prometheus registry.
func NewMailMetrics(namespace string, reg prometheus.Registerer) *MailMetrics {
	if namespace == "" {
		namespace = "jklg"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	subsystem := "mail"
	factory := promauto.With(reg)

	return &MailMetrics{
		Enqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enqueued_total",
				Help:      "Enqueue attempts by template and result",
			},
			[]string{"template", "result"}, // result: queued, rejected, error
		),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "deliveries_total",
				Help:      "Delivery attempts by outcome",
			},
			[]string{"result"}, // result: sent, failed
		),
		DeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "delivery_duration_seconds",
				Help:      "Transport send latency",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		ClaimsLost: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "claims_lost_total",
				Help:      "Pending records another worker claimed first",
			},
		),
		Recovered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "recovered_total",
				Help:      "Abandoned processing records returned to pending by the sweeper",
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "store_errors_total",
				Help:      "Queue store failures seen by the worker",
			},
			[]string{"op"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of one sweep plus delivery batch",
				Buckets:   []float64{.05, .25, 1, 5, 10, 30, 60},
			},
		),
		LastCycle: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time the worker last finished a cycle",
			},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "queue_records",
				Help:      "Records in the queue by status",
			},
			[]string{"status"},
		),
		WorkerRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "worker_restarts_total",
				Help:      "Supervised worker restarts",
			},
			[]string{"worker"},
		),
	}
}

func (m *MailMetrics) RecordEnqueue(template, result string) {
	if m == nil {
		return
	}
	if template == "" {
		template = "none"
	}
	m.Enqueued.WithLabelValues(template, result).Inc()
}

func (m *MailMetrics) RecordDelivery(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
	m.DeliveryDuration.Observe(d.Seconds())
}

func (m *MailMetrics) RecordClaimLost() {
	if m == nil {
		return
	}
	m.ClaimsLost.Inc()
}

func (m *MailMetrics) RecordRecovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Recovered.Add(float64(n))
}

func (m *MailMetrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *MailMetrics) RecordCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
	m.LastCycle.SetToCurrentTime()
}

// SetQueueDepth publishes a CountByStatus snapshot.
func (m *MailMetrics) SetQueueDepth(counts map[domain.EmailStatus]int64) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (m *MailMetrics) RecordRestart(worker string) {
	if m == nil {
		return
	}
	m.WorkerRestarts.WithLabelValues(worker).Inc()
}
