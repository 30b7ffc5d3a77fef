package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestStateStore_PostgresPutGetDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	states := NewStateStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := states.Get(ctx, domain.StateKeyCart)
	require.ErrorIs(t, err, domain.ErrStateKeyNotFound)

	require.NoError(t, states.Put(ctx, domain.StateKeyCart, []byte(`{"v":1}`)))
	require.NoError(t, states.Put(ctx, domain.StateKeyCart, []byte(`{"v":2}`)))

	value, err := states.Get(ctx, domain.StateKeyCart)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(value))

	require.NoError(t, states.Delete(ctx, domain.StateKeyCart))
	require.NoError(t, states.Delete(ctx, domain.StateKeyCart))

	_, err = states.Get(ctx, domain.StateKeyCart)
	require.ErrorIs(t, err, domain.ErrStateKeyNotFound)
}

func TestStateStore_PostgresWatchReceivesNotifications(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	states := NewStateStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes, err := states.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, states.Put(ctx, domain.StateKeyStock, []byte(`{}`)))
	require.NoError(t, states.Delete(ctx, domain.StateKeyStock))

	got := make([]domain.StateChange, 0, 2)
	for len(got) < 2 {
		select {
		case change := <-changes:
			got = append(got, change)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for notifications, got %+v", got)
		}
	}

	require.Equal(t, domain.StateKeyStock, got[0].Key)
	require.False(t, got[0].Deleted)
	require.True(t, got[1].Deleted)

	cancel()
	for range changes {
	}
}
