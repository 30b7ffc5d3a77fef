package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func enqueueIDs(t *testing.T, repo *OutboxRepository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := repo.Enqueue(domain.OutboxMessage{ID: id, EventType: domain.EventStockReserved})
		require.NoError(t, err)
	}
}

func TestOutboxRepository_Enqueue(t *testing.T) {
	t.Parallel()

	repo := NewOutboxRepository()
	payload := []byte(`{"order_id":"order-1"}`)

	saved, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderPlaced,
		Payload:       payload,
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	payload[0] = 'X'

	empty, err := repo.Enqueue(domain.OutboxMessage{ID: "run-1:reserved"})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty.Payload))

	_, err = repo.Enqueue(domain.OutboxMessage{ID: "run-1:reserved", Payload: []byte(`{"x":1}`)})
	require.NoError(t, err)

	pending := repo.AllPending()
	require.Len(t, pending, 2, "re-enqueue of the same id is a no-op")
	assert.Equal(t, saved.ID, pending[0].ID)
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(pending[0].Payload), "payload is copied on enqueue")
	assert.JSONEq(t, `{}`, string(pending[1].Payload), "first enqueue wins")
}

func TestOutboxRepository_PullPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "limited", limit: 2, want: []string{"c", "a"}},
		{name: "default limit", limit: 0, want: []string{"c", "a", "b"}},
		{name: "limit above backlog", limit: 10, want: []string{"c", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := NewOutboxRepository()
			enqueueIDs(t, repo, "c", "a", "b")

			pending, err := repo.PullPending(tt.limit)
			require.NoError(t, err)
			ids := make([]string, len(pending))
			for i, msg := range pending {
				ids[i] = msg.ID
			}
			assert.Equal(t, tt.want, ids, "insertion order")
		})
	}
}

func TestOutboxRepository_MarkAndStats(t *testing.T) {
	t.Parallel()

	repo := NewOutboxRepository()
	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())

	enqueueIDs(t, repo, "sent", "failed", "kept")
	require.NoError(t, repo.MarkSent("sent"))
	require.NoError(t, repo.MarkFailed("failed"))
	require.ErrorIs(t, repo.MarkFailed("missing"), domain.ErrOutboxPublish)

	stats, err = repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	pending := repo.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "kept", pending[0].ID)
}

func TestOutboxRepository_PurgeSent(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	repo := NewOutboxRepository()
	repo.now = func() time.Time { return at }

	enqueueIDs(t, repo, "a", "b", "c")
	require.NoError(t, repo.MarkSent("a"))
	require.NoError(t, repo.MarkFailed("b"))

	purged, err := repo.PurgeSent(context.Background(), at.Add(-time.Second))
	require.NoError(t, err)
	assert.Zero(t, purged, "retention keeps fresh rows")

	purged, err = repo.PurgeSent(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, 1, purged, "only sent rows are purged")

	require.ErrorIs(t, repo.MarkSent("a"), domain.ErrOutboxPublish, "purged row is gone")
	require.NoError(t, repo.MarkSent("b"), "failed row survives purge")
	assert.Len(t, repo.AllPending(), 1)
}
