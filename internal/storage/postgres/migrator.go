package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsDir = "sql/migrations"
	// migrationLockKey: ключ pg_advisory_lock: миграции витрины идут строго по одной.
	migrationLockKey = int64(0x53544f52)

	schemaTableDDL = `
CREATE TABLE IF NOT EXISTS storefront_schema (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
)

// ErrSchemaOutdated: схема базы не совпадает со встроенными миграциями.
var ErrSchemaOutdated = errors.New("postgres schema is not up to date")

type migration struct {
	version  int64
	name     string
	up       string
	down     string
	checksum string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

type appliedMigration struct {
	version  int64
	checksum string
}

// SchemaStatus описывает схему относительно встроенных миграций.
type SchemaStatus struct {
	Version int64
	Applied int
	// Pending: ещё не применённые миграции в порядке применения.
	Pending []string
	// Drifted: применённые миграции, чей up-скрипт с тех пор изменился.
	Drifted []string
}

// Current сообщает, что схема полностью соответствует коду.
func (s SchemaStatus) Current() bool {
	return len(s.Pending) == 0 && len(s.Drifted) == 0
}

// MigrateUp применяет до steps ожидающих миграций; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration, applied []appliedMigration) error {
		done := make(map[int64]bool, len(applied))
		for _, a := range applied {
			done[a.version] = true
		}

		count := 0
		for _, m := range migrations {
			if done[m.version] {
				continue
			}
			if steps > 0 && count >= steps {
				break
			}
			if err := s.apply(ctx, conn, m, true); err != nil {
				return err
			}
			count++
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	steps = max(steps, 1)
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration, applied []appliedMigration) error {
		byVersion := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			byVersion[m.version] = m
		}

		for i := len(applied) - 1; i >= 0 && steps > 0; i-- {
			m, ok := byVersion[applied[i].version]
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", applied[i].version)
			}
			if err := s.apply(ctx, conn, m, false); err != nil {
				return err
			}
			steps--
		}
		return nil
	})
}

// Status сравнивает применённые миграции со встроенными.
func (s *Store) Status(ctx context.Context) (SchemaStatus, error) {
	if s == nil || s.db == nil {
		return SchemaStatus{}, errStoreNotInitialized
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, schemaTableDDL); err != nil {
		return SchemaStatus{}, fmt.Errorf("ensure schema table: %w", err)
	}
	applied, err := loadApplied(queryCtx, conn)
	if err != nil {
		return SchemaStatus{}, err
	}
	return buildStatus(migrations, applied), nil
}

// CheckSchema возвращает ErrSchemaOutdated, если есть ожидающие или изменённые миграции.
func (s *Store) CheckSchema(ctx context.Context) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	if !status.Current() {
		return fmt.Errorf("%w: pending=%v drifted=%v", ErrSchemaOutdated, status.Pending, status.Drifted)
	}
	return nil
}

func buildStatus(migrations []migration, applied []appliedMigration) SchemaStatus {
	status := SchemaStatus{Applied: len(applied)}
	checksums := make(map[int64]string, len(applied))
	for _, a := range applied {
		checksums[a.version] = a.checksum
		status.Version = max(status.Version, a.version)
	}
	for _, m := range migrations {
		sum, ok := checksums[m.version]
		switch {
		case !ok:
			status.Pending = append(status.Pending, m.label())
		case sum != m.checksum:
			status.Drifted = append(status.Drifted, m.label())
		}
	}
	return status
}

type migrationFunc func(conn *sql.Conn, migrations []migration, applied []appliedMigration) error

// withMigrationLock выполняет fn на выделенном соединении под advisory lock.
func (s *Store) withMigrationLock(ctx context.Context, fn migrationFunc) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure schema table: %w", err)
	}
	applied, err := loadApplied(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, migrations, applied)
}

// apply выполняет один скрипт миграции и правит storefront_schema в той же транзакции.
func (s *Store) apply(ctx context.Context, conn *sql.Conn, m migration, up bool) error {
	direction, script := "down", m.down
	if up {
		direction, script = "up", m.up
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", direction, m.label(), err)
	}
	if up {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO storefront_schema (version, name, checksum) VALUES ($1, $2, $3)`,
			m.version, m.name, m.checksum)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM storefront_schema WHERE version = $1`, m.version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}

	s.logger.WithFields(log.Fields{"migration": m.label(), "direction": direction}).Info("migration applied")
	return nil
}

func loadApplied(ctx context.Context, conn *sql.Conn) ([]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM storefront_schema ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.version, &a.checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// loadMigrationsFromFS собирает пары up/down из каталога миграций, упорядоченные по версии.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.name, parts[2])
		}

		target := &m.down
		if parts[3] == "up" {
			target = &m.up
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		sum := sha256.Sum256([]byte(m.up))
		m.checksum = hex.EncodeToString(sum[:])
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return migrations, nil
}
