package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// opTimeout ограничивает одиночный запрос, если вызывающий не передал свой контекст.
const opTimeout = 5 * time.Second

const pgUniqueViolation = "23505"

var errStoreNotInitialized = errors.New("postgres store is not initialized")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// execAffected выполняет запрос с таймаутом opTimeout и возвращает число затронутых строк.
func execAffected(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
