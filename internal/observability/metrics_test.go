package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordsOperations(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Register(reg); err != nil {
		t.Fatalf("second Register should be accepted, got %v", err)
	}

	start := time.Now()
	m.ObserveOperation("search", start, nil)
	m.ObserveOperation("search", start, nil)
	m.ObserveOperation("search", start, errors.New("boom"))

	if v := testutil.ToFloat64(m.operationsTotal.WithLabelValues("search", StatusOK)); v != 2 {
		t.Errorf("ok count = %f, want 2", v)
	}
	if v := testutil.ToFloat64(m.operationsTotal.WithLabelValues("search", StatusError)); v != 1 {
		t.Errorf("error count = %f, want 1", v)
	}
	if n := testutil.CollectAndCount(m.operationDuration); n == 0 {
		t.Error("expected duration observations")
	}

	m.DocumentsWritten(3, 12)
	m.DocumentsRemoved(1)
	m.SetPending(4)
	if v := testutil.ToFloat64(m.documentsWritten); v != 3 {
		t.Errorf("documents written = %f", v)
	}
	if v := testutil.ToFloat64(m.triplesWritten); v != 12 {
		t.Errorf("triples written = %f", v)
	}
	if v := testutil.ToFloat64(m.documentsRemoved); v != 1 {
		t.Errorf("documents removed = %f", v)
	}
	if v := testutil.ToFloat64(m.pendingDocuments); v != 4 {
		t.Errorf("pending = %f", v)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("search", time.Now(), nil)
	m.DocumentsWritten(1, 1)
	m.DocumentsRemoved(1)
	m.SetPending(1)
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		t.Errorf("nil Register = %v", err)
	}
}
