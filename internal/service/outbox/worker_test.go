package outbox

import (
	"context"
	"encoding/json"
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

// stubRepo: потокобезопасный outbox в памяти; отмеченные события уходят из pending.
type stubRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
	pullErr   error
	markErr   error
	oldest    time.Time
}

func (r *stubRepo) add(msgs ...domain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, msgs...)
}

func (r *stubRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.add(msg)
	return msg, nil
}

func (r *stubRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pullErr != nil {
		return nil, r.pullErr
	}
	n := len(r.pending)
	if limit > 0 {
		n = min(n, limit)
	}
	return append([]domain.OutboxMessage(nil), r.pending[:n]...), nil
}

func (r *stubRepo) Stats() (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.OutboxStats{PendingCount: len(r.pending), OldestPendingAt: r.oldest}, nil
}

func (r *stubRepo) remove(id string) {
	for i, msg := range r.pending {
		if msg.ID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return
		}
	}
}

func (r *stubRepo) MarkSent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	r.sentIDs = append(r.sentIDs, id)
	r.remove(id)
	return nil
}

func (r *stubRepo) MarkFailed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedIDs = append(r.failedIDs, id)
	r.remove(id)
	return nil
}

type stubPublisher struct {
	mu       sync.Mutex
	err      error
	sequence []error
	events   []domain.OutboxMessage
}

func (p *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if len(p.sequence) > 0 {
		err := p.sequence[0]
		p.sequence = p.sequence[1:]
		return err
	}
	return p.err
}

func (p *stubPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *stubPublisher) last() domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

var (
	_ domain.OutboxRepository = (*stubRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)

func orderPlaced(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + id,
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":"order-` + id + `","total":"2000"}`),
	}
}

func TestNewWorker_Options(t *testing.T) {
	t.Parallel()

	w := NewWorker(&stubRepo{}, &stubPublisher{},
		WithPollInterval(0), WithBatchSize(-1), WithMaxAttempts(0), WithRetryBaseDelay(-time.Second), WithLogger(nil))
	assert.Equal(t, defaultPollInterval, w.pollInterval)
	assert.Equal(t, defaultBatchSize, w.batchSize)
	assert.Equal(t, defaultMaxAttempts, w.maxAttempts)
	assert.Zero(t, w.retryBaseDelay)
	assert.NotNil(t, w.logger)

	w = NewWorker(&stubRepo{}, &stubPublisher{}, WithPollInterval(time.Minute), WithBatchSize(7), WithMaxAttempts(5))
	assert.Equal(t, time.Minute, w.pollInterval)
	assert.Equal(t, 7, w.batchSize)
	assert.Equal(t, 5, w.maxAttempts)
}

func TestWorker_ProcessOnce(t *testing.T) {
	t.Parallel()

	broker := errors.New("broker down")
	tests := []struct {
		name         string
		sequence     []error
		err          error
		maxAttempts  int
		wantSent     int
		wantCalls    int
		wantFailed   []string
		wantDLQCalls int
	}{
		{name: "delivered first time", maxAttempts: 3, wantSent: 1, wantCalls: 1},
		{name: "delivered after retries", sequence: []error{broker, broker}, maxAttempts: 3, wantSent: 1, wantCalls: 3},
		{name: "exhausted goes to failed and dlq", err: broker, maxAttempts: 3, wantCalls: 3, wantFailed: []string{"1"}, wantDLQCalls: 1},
		{name: "single attempt", err: broker, maxAttempts: 1, wantCalls: 1, wantFailed: []string{"1"}, wantDLQCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}}
			publisher := &stubPublisher{err: tt.err, sequence: tt.sequence}
			dlq := &stubPublisher{}
			w := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(tt.maxAttempts))

			assert.Equal(t, tt.wantSent, w.ProcessOnce(context.Background()))
			assert.Equal(t, tt.wantCalls, publisher.calls())
			assert.Equal(t, tt.wantFailed, repo.failedIDs)
			assert.Equal(t, tt.wantDLQCalls, dlq.calls())
			assert.Empty(t, repo.pending, "event must leave pending either way")
		})
	}
}

func TestWorker_DeadLetterBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		payload     string
		wantPayload string
	}{
		{name: "json payload", payload: `{"requested":5,"before":3}`, wantPayload: `{"requested":5,"before":3}`},
		{name: "raw payload is quoted", payload: "not-json", wantPayload: `"not-json"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := domain.OutboxMessage{ID: "msg-2", AggregateType: domain.AggregateStock, AggregateID: "7:L", EventType: domain.EventStockClamped, Payload: []byte(tt.payload)}
			dlq := &stubPublisher{}
			w := NewWorker(&stubRepo{pending: []domain.OutboxMessage{event}}, &stubPublisher{err: errors.New("publish failed")},
				WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(2))
			w.now = func() time.Time { return time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC) }

			w.ProcessOnce(context.Background())

			sent := dlq.last()
			assert.Equal(t, "msg-2", sent.ID)
			assert.Equal(t, domain.EventStockClamped, sent.EventType)

			var letter DeadLetter
			require.NoError(t, json.Unmarshal(sent.Payload, &letter))
			assert.Equal(t, "msg-2", letter.OutboxID)
			assert.Equal(t, "7:L", letter.AggregateID)
			assert.JSONEq(t, tt.wantPayload, string(letter.Payload))
			assert.Contains(t, letter.PublishError, "publish failed")
			assert.Contains(t, letter.PublishError, domain.ErrOutboxPublish.Error())
			assert.Equal(t, "2026-10-15T08:00:00Z", letter.DLQPublishedAt)
		})
	}
}

func TestWorker_ProcessOnceFailures(t *testing.T) {
	t.Parallel()

	t.Run("pull error", func(t *testing.T) {
		t.Parallel()
		publisher := &stubPublisher{}
		w := NewWorker(&stubRepo{pullErr: errors.New("db down")}, publisher)
		assert.Zero(t, w.ProcessOnce(context.Background()))
		assert.Zero(t, publisher.calls())
	})

	t.Run("mark sent error is not counted", func(t *testing.T) {
		t.Parallel()
		repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}, markErr: errors.New("db down")}
		w := NewWorker(repo, &stubPublisher{}, WithRetryBaseDelay(0))
		assert.Zero(t, w.ProcessOnce(context.Background()))
		assert.Len(t, repo.pending, 1)
	})

	t.Run("dlq failure still marks failed", func(t *testing.T) {
		t.Parallel()
		repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}}
		w := NewWorker(repo, &stubPublisher{err: errors.New("broker down")},
			WithDLQPublisher(&stubPublisher{err: errors.New("dlq down")}), WithRetryBaseDelay(0), WithMaxAttempts(1))
		w.ProcessOnce(context.Background())
		assert.Equal(t, []string{"1"}, repo.failedIDs)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		publisher := &stubPublisher{}
		w := NewWorker(&stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}}, publisher)
		assert.Zero(t, w.ProcessOnce(ctx))
		assert.Zero(t, publisher.calls())
	})

	t.Run("batch size limits the cycle", func(t *testing.T) {
		t.Parallel()
		repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1"), orderPlaced("2"), orderPlaced("3")}}
		w := NewWorker(repo, &stubPublisher{}, WithBatchSize(2))
		assert.Equal(t, 2, w.ProcessOnce(context.Background()))
		assert.Equal(t, []string{"1", "2"}, repo.sentIDs)
	})
}

func TestWorker_StopDuringRetryKeepsEventPending(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	w := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour), WithMaxAttempts(3))

	done := make(chan int)
	go func() { done <- w.ProcessOnce(ctx) }()
	require.Eventually(t, func() bool { return publisher.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case sent := <-done:
		assert.Zero(t, sent)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop waiting for retry")
	}
	assert.Empty(t, repo.failedIDs)
	assert.Len(t, repo.pending, 1)
}

func TestWorker_Backoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryBaseDelay(time.Second))
	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 8*time.Second, w.backoff(4))
	assert.Equal(t, maxRetryDelay, w.backoff(5))
	assert.Equal(t, maxRetryDelay, w.backoff(80))

	assert.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(0)).backoff(3))
}

func TestWorker_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	repo := &stubRepo{pending: []domain.OutboxMessage{orderPlaced("1")}, oldest: now.Add(-30 * time.Second)}
	w := NewWorker(repo, &stubPublisher{sequence: []error{errors.New("broker down")}},
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)), WithRetryBaseDelay(0))
	w.now = func() time.Time { return now }

	require.Equal(t, 1, w.ProcessOnce(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"storefront_outbox_publish_attempts_total",
		"storefront_outbox_pending_records",
		"storefront_outbox_oldest_pending_age_seconds",
	}, names)

	count, err := testutil.GatherAndCount(reg, "storefront_outbox_publish_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "retry_error and sent series")
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops on context cancel", func(t *testing.T) {
		t.Parallel()
		w := NewWorker(&stubRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.Run(ctx)
		}()

		time.Sleep(15 * time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on context cancel")
		}
	})

	t.Run("notify triggers immediate cycle", func(t *testing.T) {
		t.Parallel()
		repo := &stubRepo{}
		publisher := &stubPublisher{}
		w := NewWorker(repo, publisher, WithPollInterval(time.Hour), WithRetryBaseDelay(0))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		repo.add(orderPlaced("late"))
		w.Notify()
		w.Notify()
		require.Eventually(t, func() bool { return publisher.calls() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("disabled without publisher", func(t *testing.T) {
		t.Parallel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			NewWorker(&stubRepo{}, nil).Run(context.Background())
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker without publisher must return at once")
		}
	})
}
