package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordPublish("OrderPlaced", OutboxRetryError)
	m.RecordPublish("OrderPlaced", OutboxSent)
	m.RecordPublish("OrderPlaced", OutboxSent)
	m.SetBacklog(4, 90*time.Second)

	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("OrderPlaced", OutboxSent)); got != 2 {
		t.Fatalf("expected 2 sent, got %f", got)
	}
	if got := testutil.ToFloat64(m.pending); got != 4 {
		t.Fatalf("expected 4 pending, got %f", got)
	}
	if got := testutil.ToFloat64(m.oldestAge); got != 90 {
		t.Fatalf("expected oldest age 90s, got %f", got)
	}

	m.SetBacklog(0, -time.Minute)
	if got := testutil.ToFloat64(m.oldestAge); got != 0 {
		t.Fatalf("negative age must be reported as zero, got %f", got)
	}
}

func TestOutboxMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOutboxMetricsWithRegisterer(reg)
	second := NewOutboxMetricsWithRegisterer(reg)

	first.RecordPublish("StockClamped", OutboxFailed)
	second.RecordPublish("StockClamped", OutboxFailed)

	if got := testutil.ToFloat64(first.publishAttempts.WithLabelValues("StockClamped", OutboxFailed)); got != 2 {
		t.Fatalf("re-created metrics must reuse registered collectors, got %f", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordPublish("StockClamped", OutboxSent)
	nilMetrics.SetBacklog(1, time.Second)
}

func TestCleanupMetrics_RecordRun(t *testing.T) {
	m := NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordRun("idempotency", 7, nil)
	m.RecordRun("idempotency", 2, errors.New("db down"))
	m.RecordRun("outbox", 0, nil)

	if got := testutil.ToFloat64(m.deleted.WithLabelValues("idempotency")); got != 9 {
		t.Fatalf("expected 9 deleted keys, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastDeleted.WithLabelValues("idempotency")); got != 7 {
		t.Fatalf("failed run must not overwrite last deleted, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("idempotency", "error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("outbox", "ok")); got != 1 {
		t.Fatalf("expected 1 outbox run, got %f", got)
	}

	var nilMetrics *CleanupMetrics
	nilMetrics.RecordRun("outbox", 1, nil)
}
