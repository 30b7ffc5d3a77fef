package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultOutboxPullLimit = 100

type deliveryState uint8

const (
	statePending deliveryState = iota
	stateSent
	stateFailed
)

// queued: событие в очереди вместе с порядковым номером и итогом доставки.
type queued struct {
	msg       domain.OutboxMessage
	state     deliveryState
	attempts  int
	order     uint64
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository держит очередь событий в памяти, когда PostgreSQL не настроен.
// Повторная постановка того же ID ничего не меняет.
type OutboxRepository struct {
	mu     sync.RWMutex
	events map[string]*queued
	next   uint64
	now    func() time.Time
}

// NewOutboxRepository создаёт пустую очередь.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		events: make(map[string]*queued),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue ставит событие в очередь.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	} else {
		msg.Payload = slices.Clone(msg.Payload)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[msg.ID]; exists {
		return msg, nil
	}
	r.next++
	now := r.now()
	r.events[msg.ID] = &queued{msg: msg, order: r.next, createdAt: now, updatedAt: now}
	return msg, nil
}

// PullPending возвращает до limit ожидающих событий в порядке постановки.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}
	pending := r.pending()
	pending = pending[:min(limit, len(pending))]

	out := make([]domain.OutboxMessage, len(pending))
	for i, q := range pending {
		out[i] = q.msg
	}
	return out, nil
}

// AllPending возвращает все ожидающие события без ограничения по количеству.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	pending := r.pending()
	out := make([]domain.OutboxMessage, len(pending))
	for i, q := range pending {
		out[i] = q.msg
	}
	return out
}

// Stats считает backlog.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	pending := r.pending()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent отмечает событие доставленным.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, stateSent)
}

// MarkFailed отмечает событие недоставленным.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, stateFailed)
}

// PurgeSent удаляет доставленные события, обновлённые не позже before.
func (r *OutboxRepository) PurgeSent(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, q := range r.events {
		if q.state == stateSent && !q.updatedAt.After(before) {
			delete(r.events, id)
			purged++
		}
	}
	return purged, nil
}

func (r *OutboxRepository) mark(id string, state deliveryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox %s not found: %w", id, domain.ErrOutboxPublish)
	}
	q.state = state
	q.attempts++
	q.updatedAt = r.now()
	return nil
}

// pending возвращает копии ожидающих записей, отсортированные по порядку постановки.
func (r *OutboxRepository) pending() []queued {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]queued, 0, len(r.events))
	for _, q := range r.events {
		if q.state == statePending {
			out = append(out, *q)
		}
	}
	slices.SortFunc(out, func(a, b queued) int { return cmp.Compare(a.order, b.order) })
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
