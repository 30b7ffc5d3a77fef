package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Pinger: компонент с проверкой соединения (PostgreSQL, Redis, SQLite).
type Pinger interface {
	Ping(ctx context.Context) error
}

type funcChecker struct {
	name     string
	degraded bool
	fn       func(ctx context.Context) error
}

// NewCheck оборачивает функцию: ошибка делает компонент unhealthy.
func NewCheck(name string, fn func(ctx context.Context) error) Checker {
	return &funcChecker{name: name, fn: fn}
}

// NewSoftCheck оборачивает функцию для необязательного компонента: ошибка даёт degraded.
func NewSoftCheck(name string, fn func(ctx context.Context) error) Checker {
	return &funcChecker{name: name, degraded: true, fn: fn}
}

// PingCheck проверяет Pinger.
func PingCheck(name string, p Pinger) Checker {
	return NewCheck(name, p.Ping)
}

func (c *funcChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.fn(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		if c.degraded {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
	}
	return check
}

// StateStoreCheck читает ключ products: отсутствие значения считается нормой.
func StateStoreCheck(store domain.StateStore) Checker {
	return NewCheck("state-store", func(ctx context.Context) error {
		_, err := store.Get(ctx, domain.StateKeyProducts)
		if err != nil && !errors.Is(err, domain.ErrStateKeyNotFound) {
			return err
		}
		return nil
	})
}

// OutboxBacklogCheck помечает outbox как degraded, если самое старое
// неотправленное событие ждёт дольше maxAge.
func OutboxBacklogCheck(repo domain.OutboxRepository, maxAge time.Duration, now func() time.Time) Checker {
	if now == nil {
		now = time.Now
	}
	return NewSoftCheck("outbox", func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}
		if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
			return nil
		}
		if age := now().Sub(stats.OldestPendingAt); age > maxAge {
			return fmt.Errorf("%d pending events, oldest waits %s", stats.PendingCount, age.Truncate(time.Second))
		}
		return nil
	})
}
