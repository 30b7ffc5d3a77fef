package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// Живая запись с тем же ключом не перезаписывается: RETURNING пуст, и
	// вызывающий узнаёт о конфликте. Просроченная запись занимается заново.
	claimIdempotencyKeySQL = `
INSERT INTO idempotency_keys (key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at)
VALUES ($1, $2, NULL, NULL, 'processing', $3, $4, $4)
ON CONFLICT (key) DO UPDATE
SET request_hash = EXCLUDED.request_hash,
    response_body = NULL,
    http_status = NULL,
    status = EXCLUDED.status,
    ttl_at = EXCLUDED.ttl_at,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at
WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
RETURNING key`

	selectIdempotencyKeySQL = `
SELECT key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at
FROM idempotency_keys
WHERE key = $1 AND ttl_at > $2`

	finishIdempotencyKeySQL = `
UPDATE idempotency_keys
SET response_body = $2, http_status = $3, status = $4, updated_at = $5
WHERE key = $1 AND ttl_at > $5`

	releaseIdempotencyKeySQL = `DELETE FROM idempotency_keys WHERE key = $1`

	// LIMIT NULL в PostgreSQL означает отсутствие ограничения.
	deleteExpiredIdempotencySQL = `
DELETE FROM idempotency_keys
WHERE key IN (
    SELECT key FROM idempotency_keys
    WHERE ttl_at <= $1
    ORDER BY ttl_at
    LIMIT $2
)`
)

// IdempotencyRepository хранит ключи оформления в idempotency_keys.
type IdempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт хранилище ключей поверх открытого Store.
func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ под новый запрос. Для живого ключа возвращает
// существующую запись и ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var claimed string
	err := r.db.QueryRowContext(ctx, claimIdempotencyKeySQL, key, requestHash, ttlAt, now).Scan(&claimed)
	switch {
	case err == nil:
		return domain.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      domain.IdempotencyStatusProcessing,
			TTLAt:       ttlAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return r.conflict(key, requestHash)
	default:
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key: %w", err)
	}
}

// conflict объясняет, почему ключ не удалось занять.
func (r *IdempotencyRepository) conflict(key, requestHash string) (domain.IdempotencyRecord, error) {
	existing, err := r.Get(key)
	if err != nil {
		// Запись успела истечь или удалиться между запросами: считаем ключ занятым,
		// клиент повторит запрос.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

// Get возвращает живую запись; просроченная считается отсутствующей.
func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		rec        domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, selectIdempotencyKeySQL, key, r.now()).Scan(
		&rec.Key, &rec.RequestHash, &rec.ResponseBody, &httpStatus, &status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}

	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has unknown status %q", key, status)
	}
	rec.HTTPStatus = int(httpStatus.Int64)
	return rec, nil
}

// MarkDone сохраняет успешный ответ для повторов.
func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed сохраняет ответ с ошибкой; повтор с тем же ключом получит его же.
func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Release освобождает ключ. Отсутствующий ключ не считается ошибкой.
func (r *IdempotencyRepository) Release(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if _, err := execAffected(context.Background(), r.db, releaseIdempotencyKeySQL, key); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired удаляет до limit просроченных ключей, начиная с самых старых;
// limit <= 0 снимает ограничение.
func (r *IdempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}
	batch := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	deleted, err := execAffected(context.Background(), r.db, deleteExpiredIdempotencySQL, before, batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return int(deleted), nil
}

func (r *IdempotencyRepository) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	updated, err := execAffected(context.Background(), r.db, finishIdempotencyKeySQL,
		key, responseBody, httpStatus, string(status), r.now())
	if err != nil {
		return fmt.Errorf("finish idempotency key %s: %w", key, err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
