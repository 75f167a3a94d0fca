package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the Prometheus collectors of one store. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	documentsWritten  prometheus.Counter
	documentsRemoved  prometheus.Counter
	triplesWritten    prometheus.Counter
	pendingDocuments  prometheus.Gauge
}

// NewMetrics creates the store collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nanostore"
	}
	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		documentsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Total number of documents written",
		}),
		documentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_removed_total",
			Help:      "Total number of documents removed",
		}),
		triplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triples_written_total",
			Help:      "Total number of value rows written",
		}),
		pendingDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_documents",
			Help:      "Documents buffered by the save interval and not yet written",
		}),
	}
}

// Register registers every collector with reg. Collectors already
// registered by an earlier call are accepted.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.documentsWritten,
		m.documentsRemoved,
		m.triplesWritten,
		m.pendingDocuments,
	}
}

// ObserveOperation records one operation that started at start.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// DocumentsWritten adds n written documents carrying triples value rows.
func (m *Metrics) DocumentsWritten(n, triples int) {
	if m == nil {
		return
	}
	m.documentsWritten.Add(float64(n))
	m.triplesWritten.Add(float64(triples))
}

// DocumentsRemoved adds n removed documents.
func (m *Metrics) DocumentsRemoved(n int) {
	if m == nil {
		return
	}
	m.documentsRemoved.Add(float64(n))
}

// SetPending sets the number of buffered documents.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingDocuments.Set(float64(n))
}
