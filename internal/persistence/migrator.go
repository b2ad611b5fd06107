package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrLedgerNotEmpty is returned by Down when the rollback would drop
	// committed history that recovery depends on.
	ErrLedgerNotEmpty = errors.New("ledger holds committed history")

	// ErrSchemaIncomplete is returned when migrations leave a table the
	// writer or the snapshot loader needs missing.
	ErrSchemaIncomplete = errors.New("ledger schema incomplete")
)

// LedgerTables are written by CommitLogWriter and read back by
// SnapshotLoader. All of them must exist once every migration is applied.
var LedgerTables = []string{
	"event_log.commits",
	"event_log.journal",
	"ledger.records",
	"ledger.balances",
}

// migrationLockID keys the advisory lock that serializes migrators across
// daemon instances.
const migrationLockID int64 = 0x466c75784d6967 // "FluxMig"

var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned pair of up/down files.
type Migration struct {
	Version  string
	Name     string
	UpFile   string
	DownFile string
}

// MigrationStatus reports whether a migration is applied.
type MigrationStatus struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

// LoadMigrations reads {version}_{name}.up.sql / .down.sql pairs from dir,
// ordered by version. Every version needs both files.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := migrationName.FindStringSubmatch(e.Name())
		if parts == nil {
			return nil, fmt.Errorf("migration %s: name must be {version}_{name}.up.sql or .down.sql", e.Name())
		}
		version, name, direction := parts[1], parts[2], parts[3]

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration %s: version shared by %q and %q", version, m.Name, name)
		}
		if direction == "up" {
			m.UpFile = e.Name()
		} else {
			m.DownFile = e.Name()
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpFile == "" || m.DownFile == "" {
			return nil, fmt.Errorf("migration %s_%s: needs both up and down files", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrator applies the ledger schema. Up and Down each run in one
// transaction holding a Postgres advisory lock, so two daemons starting
// together cannot interleave DDL.
type Migrator struct {
	db            *sql.DB
	migrationsDir string
	logger        zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, migrationsDir: migrationsDir, logger: logger}
}

// Up applies every pending migration and then checks that the ledger tables
// exist. Nothing is committed unless both succeed.
func (m *Migrator) Up(ctx context.Context) error {
	migrations, err := LoadMigrations(m.migrationsDir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	return m.inTx(ctx, func(tx *sql.Tx) error {
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return fmt.Errorf("applied versions: %w", err)
		}

		for _, mig := range migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			content, err := os.ReadFile(filepath.Join(m.migrationsDir, mig.UpFile))
			if err != nil {
				return fmt.Errorf("read %s: %w", mig.UpFile, err)
			}
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("exec %s: %w", mig.UpFile, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
				mig.Version, mig.UpFile,
			); err != nil {
				return fmt.Errorf("record %s: %w", mig.UpFile, err)
			}
			m.logger.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("applied migration")
		}

		return verifyLedgerTables(ctx, tx)
	})
}

// Down rolls back the latest applied migration. While event_log.commits
// holds rows it refuses with ErrLedgerNotEmpty unless force is set: the
// commit log is what the engine restores from.
func (m *Migrator) Down(ctx context.Context, force bool) error {
	migrations, err := LoadMigrations(m.migrationsDir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	byVersion := make(map[string]Migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.Version] = mig
	}

	return m.inTx(ctx, func(tx *sql.Tx) error {
		var version string
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			m.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("latest migration: %w", err)
		}

		mig, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("applied migration %s has no files in %s", version, m.migrationsDir)
		}

		commits, err := committedCount(ctx, tx)
		if err != nil {
			return err
		}
		if commits > 0 {
			if !force {
				return fmt.Errorf("roll back %s with %d commits: %w", mig.DownFile, commits, ErrLedgerNotEmpty)
			}
			m.logger.Warn().
				Str("version", mig.Version).
				Int64("commits", commits).
				Msg("forcing rollback over committed history")
		}

		content, err := os.ReadFile(filepath.Join(m.migrationsDir, mig.DownFile))
		if err != nil {
			return fmt.Errorf("read %s: %w", mig.DownFile, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec %s: %w", mig.DownFile, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM public.schema_migrations WHERE version = $1`, version,
		); err != nil {
			return fmt.Errorf("unrecord %s: %w", version, err)
		}

		m.logger.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("rolled back migration")
		return nil
	})
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := LoadMigrations(m.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	if err := ensureMigrationTable(ctx, m.db); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedVersions(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("applied versions: %w", err)
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		at, ok := applied[mig.Version]
		out = append(out, MigrationStatus{Migration: mig, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func (m *Migrator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if err := ensureMigrationTable(ctx, m.db); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, q querier) (map[string]time.Time, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, applied_at FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var v string
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

// verifyLedgerTables reports every missing ledger table in one error.
func verifyLedgerTables(ctx context.Context, q querier) error {
	var missing []string
	for _, table := range LedgerTables {
		var present bool
		if err := q.QueryRowContext(ctx,
			`SELECT to_regclass($1) IS NOT NULL`, table,
		).Scan(&present); err != nil {
			return fmt.Errorf("check %s: %w", table, err)
		}
		if !present {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), ErrSchemaIncomplete)
	}
	return nil
}

// committedCount returns the number of commits in the log, or zero when the
// log table does not exist yet.
func committedCount(ctx context.Context, q querier) (int64, error) {
	var present bool
	if err := q.QueryRowContext(ctx,
		`SELECT to_regclass('event_log.commits') IS NOT NULL`,
	).Scan(&present); err != nil {
		return 0, fmt.Errorf("check commit log: %w", err)
	}
	if !present {
		return 0, nil
	}

	var n int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log.commits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return n, nil
}
