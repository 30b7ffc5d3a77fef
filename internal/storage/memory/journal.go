package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Journal: in-memory журнал шагов оформления.
type Journal struct {
	mu      sync.RWMutex
	entries map[string][]domain.JournalEntry
}

// NewJournal создаёт пустой журнал.
func NewJournal() *Journal {
	return &Journal{entries: make(map[string][]domain.JournalEntry)}
}

// Append добавляет запись в журнал запуска.
func (j *Journal) Append(_ context.Context, entry domain.JournalEntry) error {
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[entry.RunID] = append(j.entries[entry.RunID], entry)
	return nil
}

// List возвращает записи запуска в порядке добавления.
func (j *Journal) List(_ context.Context, runID string) ([]domain.JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]domain.JournalEntry(nil), j.entries[runID]...), nil
}

var _ domain.CheckoutJournal = (*Journal)(nil)
