package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestIdempotencyRepository_PostgresCreateGetAndMarkDone(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	key := "checkout-key-done"
	hash := "req-hash-1"
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(key, hash, ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	err = repo.MarkDone(key, []byte(`{"order_id":"o-1"}`), 201)
	require.NoError(t, err)

	got, err := repo.Get(key)
	require.NoError(t, err)
	require.Equal(t, hash, got.RequestHash)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"order_id":"o-1"}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)
}

func TestIdempotencyRepository_PostgresConflictAndHashMismatch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing("checkout-key-conflict", "req-hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing("checkout-key-conflict", "req-hash-a", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists))

	_, err = repo.CreateProcessing("checkout-key-conflict", "req-hash-b", ttl)
	require.True(t, errors.Is(err, domain.ErrIdempotencyHashMismatch))
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReusable(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	_, err := repo.CreateProcessing("checkout-key-expired", "old-hash", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = repo.Get("checkout-key-expired")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	created, err := repo.CreateProcessing("checkout-key-expired", "new-hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "new-hash", created.RequestHash)
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()
	for i, ttl := range []time.Duration{-5 * time.Minute, -4 * time.Minute, -3 * time.Minute} {
		_, err := repo.CreateProcessing("checkout-expired-"+string(rune('a'+i)), "h", now.Add(ttl))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing("checkout-active", "h4", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get("checkout-active")
	require.NoError(t, err)
}

func TestIdempotencyRepository_PostgresFailedResponseAndUnlimitedDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	_, err := repo.CreateProcessing("  checkout-key-failed  ", "h", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed("checkout-key-failed", []byte(`{"error":"sin stock"}`), 409))

	got, err := repo.Get("checkout-key-failed")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)
	require.Equal(t, 409, got.HTTPStatus)

	require.ErrorIs(t, repo.MarkDone("missing-key", nil, 201), domain.ErrIdempotencyKeyNotFound)
	require.ErrorIs(t, repo.MarkDone(" ", nil, 201), domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing("k", " ", time.Time{})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	now := time.Now().UTC()
	for _, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(key, "h", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	removed, err := repo.DeleteExpired(now, 0)
	require.NoError(t, err)
	require.Equal(t, 3, removed)
}

func TestIdempotencyRepository_PostgresRelease(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	key := "checkout-key-release"
	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing(key, "hash-a", ttl)
	require.NoError(t, err)

	require.NoError(t, repo.Release(key))
	_, err = repo.Get(key)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	_, err = repo.CreateProcessing(key, "hash-b", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.Release(key))
	require.NoError(t, repo.Release(key), "releasing a missing key is not an error")
}
