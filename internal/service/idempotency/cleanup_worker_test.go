package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// stubKeys отдаёт заранее заданные результаты DeleteExpired по очереди.
type stubKeys struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	results []int
	errs    []error
	befores []time.Time
}

func (s *stubKeys) DeleteExpired(before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.befores = append(s.befores, before)
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	deleted := 0
	if len(s.results) > 0 {
		deleted, s.results = s.results[0], s.results[1:]
	}
	return deleted, err
}

func (s *stubKeys) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.befores)
}

type stubPurger struct {
	mu      sync.Mutex
	deleted int
	err     error
	before  time.Time
}

func (s *stubPurger) PurgeSent(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before = before
	return s.deleted, s.err
}

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name      string
		results   []int
		errs      []error
		wantTotal int
		wantCalls int
		wantErr   error
	}{
		{name: "stops on short batch", results: []int{2, 2, 1}, wantTotal: 5, wantCalls: 3},
		{name: "empty table", results: []int{0}, wantTotal: 0, wantCalls: 1},
		{name: "exact multiple needs one more call", results: []int{2, 2, 0}, wantTotal: 4, wantCalls: 3},
		{name: "error keeps partial total", results: []int{2, 1}, errs: []error{nil, boom}, wantTotal: 3, wantCalls: 2, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubKeys{results: tt.results, errs: tt.errs}
			deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(context.Background(), time.Now().UTC())

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantTotal, deleted)
			assert.Equal(t, tt.wantCalls, repo.calls())
		})
	}
}

func TestCleanupWorker_DeleteExpiredDefaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	repo := &stubKeys{}
	w := NewCleanupWorker(repo, WithCleanupClock(func() time.Time { return now }))

	_, err := w.DeleteExpired(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now}, repo.befores, "zero cutoff means now")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.DeleteExpired(ctx, now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, repo.calls())
}

func TestCleanupWorker_RunOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	reg := prometheus.NewRegistry()
	repo := &stubKeys{results: []int{3}}
	purger := &stubPurger{err: errors.New("outbox table locked")}
	w := NewCleanupWorker(repo,
		WithOutboxRetention(purger, time.Hour),
		WithCleanupClock(func() time.Time { return now }),
		WithCleanupMetrics(metrics.NewCleanupMetricsWithRegisterer(reg)),
	)

	w.runOnce(context.Background(), w.tasks())

	assert.Equal(t, now.Add(-time.Hour), purger.before)
	assert.Equal(t, []time.Time{now}, repo.befores, "outbox failure does not block key cleanup")

	count, err := testutil.GatherAndCount(reg, "storefront_cleanup_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "idempotency/ok and outbox/error")
}

func TestCleanupWorker_Tasks(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewCleanupWorker(nil).tasks())

	w := NewCleanupWorker(nil, WithOutboxRetention(&stubPurger{}, 0))
	require.Len(t, w.tasks(), 1)
	assert.Equal(t, kindOutbox, w.tasks()[0].kind)
	assert.Equal(t, defaultOutboxRetention, w.retention)

	w = NewCleanupWorker(&stubKeys{}, WithOutboxRetention(&stubPurger{}, time.Minute), WithInterval(0), WithBatchSize(0))
	assert.Len(t, w.tasks(), 2)
	assert.Equal(t, defaultCleanupInterval, w.interval)
	assert.Equal(t, defaultCleanupBatchSize, w.batchSize)
}

func TestCleanupWorker_Run(t *testing.T) {
	t.Parallel()

	t.Run("disabled without targets", func(t *testing.T) {
		t.Parallel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			NewCleanupWorker(nil).Run(context.Background())
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker without targets must return immediately")
		}
	})

	t.Run("repeats until canceled", func(t *testing.T) {
		t.Parallel()
		repo := &stubKeys{}
		w := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(ctx)
		}()

		require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on context cancel")
		}
	})
}
