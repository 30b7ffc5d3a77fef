// Package sqlite хранит журнал шагов оформления в локальном файле SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// Таблица только дополняется: каждая строка фиксирует исход одного шага.
const schema = `
CREATE TABLE IF NOT EXISTS checkout_journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    client_id   TEXT NOT NULL DEFAULT '',
    step        TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkout_journal_run ON checkout_journal(run_id, id);
`

// Journal: SQLite-реализация domain.CheckoutJournal.
type Journal struct {
	db *sql.DB
}

// Open открывает (или создаёт) базу по пути path и применяет схему.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: journal path is empty")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// Один писатель.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close закрывает базу.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping проверяет, что файл журнала доступен.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Append записывает исход шага.
func (j *Journal) Append(ctx context.Context, entry domain.JournalEntry) error {
	if strings.TrimSpace(entry.RunID) == "" {
		return fmt.Errorf("sqlite: journal entry without run id")
	}
	if entry.Occurred.IsZero() {
		entry.Occurred = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO checkout_journal (run_id, client_id, step, outcome, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.ClientID,
		string(entry.Step),
		string(entry.Outcome),
		entry.Detail,
		entry.Occurred.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append journal entry for %q: %w", entry.RunID, err)
	}
	return nil
}

// List возвращает записи запуска в порядке добавления.
func (j *Journal) List(ctx context.Context, runID string) ([]domain.JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, client_id, step, outcome, detail, occurred_at
		FROM   checkout_journal
		WHERE  run_id = ?
		ORDER  BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list journal for %q: %w", runID, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			entry      domain.JournalEntry
			step       string
			outcome    string
			occurredAt string
		)
		if err := rows.Scan(&entry.RunID, &entry.ClientID, &step, &outcome, &entry.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal row: %w", err)
		}
		entry.Step = domain.CheckoutStep(step)
		entry.Outcome = domain.JournalOutcome(outcome)
		entry.Occurred, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse occurred_at %q: %w", occurredAt, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate journal rows: %w", err)
	}
	return entries, nil
}

var _ domain.CheckoutJournal = (*Journal)(nil)
