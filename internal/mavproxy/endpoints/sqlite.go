package endpoints

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps endpoints in a SQLite database. Row position preserves
// insertion order across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("endpoints: database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("endpoints: ensure database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("endpoints: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `name, owner, connection_type, place, argument, persistent, protected, enabled`

// List returns endpoints in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]endpoint.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM endpoints ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("endpoints: list: %w", err)
	}
	defer rows.Close()

	var out []endpoint.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get fetches an endpoint by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*endpoint.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM endpoints WHERE name = ?`, name)
	e, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return &e, nil
}

// Upsert inserts or updates an endpoint, keeping the original position on update.
func (s *SQLiteStore) Upsert(ctx context.Context, e endpoint.Endpoint) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO endpoints
        (name, owner, connection_type, place, argument, persistent, protected, enabled, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            owner = excluded.owner,
            connection_type = excluded.connection_type,
            place = excluded.place,
            argument = excluded.argument,
            persistent = excluded.persistent,
            protected = excluded.protected,
            enabled = excluded.enabled,
            updated_at = excluded.updated_at`,
		e.Name, e.Owner, string(e.ConnectionType), e.Place, e.Argument,
		e.Persistent, e.Protected, e.Enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("endpoints: upsert %s: %w", e.Name, err)
	}
	return nil
}

// Delete removes an endpoint by name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("endpoints: delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("endpoints: delete %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (endpoint.Endpoint, error) {
	var (
		e        endpoint.Endpoint
		connType string
	)
	if err := row.Scan(&e.Name, &e.Owner, &connType, &e.Place, &e.Argument, &e.Persistent, &e.Protected, &e.Enabled); err != nil {
		return endpoint.Endpoint{}, err
	}
	e.ConnectionType = endpoint.ConnectionType(connType)
	return e, nil
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INTEGER PRIMARY KEY,
        name TEXT NOT NULL,
        applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`); err != nil {
		return fmt.Errorf("endpoints: ensure schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("endpoints: select applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("endpoints: scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("endpoints: list migrations: %w", err)
	}
	sort.Strings(files)
	for _, path := range files {
		name := filepath.Base(path)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("endpoints: invalid migration filename %s: %w", name, err)
		}
		if applied[version] {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, path)
		if err != nil {
			return fmt.Errorf("endpoints: read migration %s: %w", name, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("endpoints: begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("endpoints: apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name, applied_at) VALUES(?, ?, ?)`,
			version, strings.TrimSuffix(name, filepath.Ext(name)), time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("endpoints: record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("endpoints: commit migration %d: %w", version, err)
		}
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
