package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestMirror_FlushWritesLatestSnapshots(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	stockMap := stock.New()
	carts := cart.NewRegistry(nil)
	mirror := NewMirror(store, stockMap, carts, nil)
	mirror.Attach()

	stockMap.InitializeForItem(1, domain.SizeM)
	stockMap.Decrease(domain.NewItemKey(1, domain.SizeM), 5)

	c, _ := carts.Activate("tab-1", domain.AnonymousSession())
	c.Add(cart.Item{ID: 7, Name: "X", Price: decimal.NewFromInt(1000)}, 2, domain.SizeL)

	require.NoError(t, mirror.Flush(context.Background()))

	raw, err := store.Get(context.Background(), domain.StateKeyStock)
	require.NoError(t, err)
	var entries []stock.Entry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 15, entries[0].Quantity)

	raw, err = store.Get(context.Background(), domain.StateKeyCart)
	require.NoError(t, err)
	var snapshots []cart.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snapshots))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "tab-1", snapshots[0].ClientID)
	require.Len(t, snapshots[0].Lines, 1)
	assert.Equal(t, 2, snapshots[0].Lines[0].Quantity)
}

func TestMirror_LateNotificationDoesNotPersistOlderStock(t *testing.T) {
	t.Parallel()

	key := domain.NewItemKey(1, domain.SizeM)
	var stockMap *stock.Map
	interleaved := false
	// Первое уведомление успевает пропустить вперёд себя следующее изменение.
	stockMap = stock.New(stock.WithObserver(func([]stock.Entry) {
		if !interleaved {
			interleaved = true
			stockMap.Decrease(key, 5)
		}
	}))

	store := memory.NewStateStore()
	mirror := NewMirror(store, stockMap, nil, nil)
	mirror.Attach()

	stockMap.InitializeForItem(1, domain.SizeM)
	require.True(t, interleaved)
	require.NoError(t, mirror.Flush(context.Background()))

	raw, err := store.Get(context.Background(), domain.StateKeyStock)
	require.NoError(t, err)
	var entries []stock.Entry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 15, entries[0].Quantity)
}

func TestMirror_RestoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	source := NewMirror(store, stock.New(), cart.NewRegistry(nil), nil)
	source.Attach()
	source.stock.InitializeForItem(3, domain.SizeS, domain.SizeL)
	c, _ := source.carts.Activate("tab-9", domain.Session{Token: "t", UserID: "u-1"})
	c.Add(cart.Item{ID: 3, Name: "Polera", Price: decimal.NewFromInt(500)}, 4, domain.SizeS)
	require.NoError(t, source.Flush(context.Background()))

	restoredStock := stock.New()
	restoredCarts := cart.NewRegistry(nil)
	require.NoError(t, NewMirror(store, restoredStock, restoredCarts, nil).Restore(context.Background()))

	assert.Equal(t, 20, restoredStock.Available(domain.NewItemKey(3, domain.SizeL)))
	restored, ok := restoredCarts.Get("tab-9")
	require.True(t, ok)
	assert.Equal(t, 4, restored.TotalCount())

	// Та же идентичность сессии не сбрасывает восстановленную корзину.
	again, reset := restoredCarts.Activate("tab-9", domain.Session{Token: "other", UserID: "u-1"})
	assert.False(t, reset)
	assert.Equal(t, 4, again.TotalCount())
}

func TestMirror_RestoreWithEmptyStore(t *testing.T) {
	t.Parallel()

	stockMap := stock.New()
	require.NoError(t, NewMirror(memory.NewStateStore(), stockMap, cart.NewRegistry(nil), nil).Restore(context.Background()))
	assert.Empty(t, stockMap.Snapshot())
}

func TestMirror_RestoreRejectsCorruptSnapshot(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	require.NoError(t, store.Put(context.Background(), domain.StateKeyStock, []byte("not-json")))

	err := NewMirror(store, stock.New(), nil, nil).Restore(context.Background())
	require.Error(t, err)
}

type flakyStore struct {
	*memory.StateStore
	fail bool
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	return s.StateStore.Put(ctx, key, value)
}

func TestMirror_FailedWriteIsRetriedOnNextFlush(t *testing.T) {
	t.Parallel()

	store := &flakyStore{StateStore: memory.NewStateStore(), fail: true}
	stockMap := stock.New()
	mirror := NewMirror(store, stockMap, nil, nil)
	mirror.Attach()

	stockMap.InitializeForItem(5)
	require.Error(t, mirror.Flush(context.Background()))

	store.fail = false
	require.NoError(t, mirror.Flush(context.Background()))

	_, err := store.Get(context.Background(), domain.StateKeyStock)
	require.NoError(t, err)
}

func TestMirror_RunWritesAndBroadcasts(t *testing.T) {
	t.Parallel()

	store := memory.NewStateStore()
	stockMap := stock.New()
	mirror := NewMirror(store, stockMap, nil, nil)
	mirror.Attach()

	changes, unsubscribe := mirror.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mirror.Run(ctx)
	}()

	// Даём Run подписаться на хранилище до первого изменения.
	time.Sleep(20 * time.Millisecond)
	stockMap.InitializeForItem(8, domain.SizeXL)

	select {
	case change := <-changes:
		assert.Equal(t, domain.StateKeyStock, change.Key)
	case <-time.After(time.Second):
		t.Fatal("no state change broadcast")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop")
	}
}
