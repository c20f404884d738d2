package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/registry"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Index on alerts.raised_at for history listing
const currentSchemaVersion = 1

// SQLite stores attribute values and alert history in one database.
// Uses WAL mode so the CLI can read history while the agent writes.
type SQLite struct {
	db    *sql.DB
	kinds kinds
	mu    sync.Mutex
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, defs []mib.Definition) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, kinds: persistentKinds(defs)}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads every saved attribute. Rows whose kind or value no longer match
// the schema are skipped with a warning.
func (s *SQLite) Load(ctx context.Context) (registry.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, value FROM attributes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	snap := registry.Snapshot{}
	seen := 0
	for rows.Next() {
		var name, kindName, text string
		if err := rows.Scan(&name, &kindName, &text); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		seen++

		want, ok := s.kinds[name]
		if !ok {
			slog.Warn("ignoring unknown attribute in database", "attribute", name)
			continue
		}
		kind, err := mib.ParseKind(kindName)
		if err != nil || kind != want {
			slog.Warn("ignoring attribute with changed kind", "attribute", name, "stored", kindName, "want", want)
			continue
		}
		v, err := mib.ParseValue(kind, text)
		if err != nil {
			slog.Warn("ignoring bad value in database", "attribute", name, "error", err)
			continue
		}
		snap[name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	if seen == 0 {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Save replaces every stored attribute inside one transaction.
func (s *SQLite) Save(ctx context.Context, snap registry.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attributes`); err != nil {
		return fmt.Errorf("clear attributes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO attributes (name, kind, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for name, v := range s.kinds.filter(snap) {
		if _, err := stmt.ExecContext(ctx, name, v.Kind().String(), v.String()); err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_alerts_raised_at ON alerts(raised_at)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
