// ABOUTME: SQLite implementation of the central registry using modernc.org/sqlite
// ABOUTME: Holds clients and accounts with a cascading foreign key between them

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Registry using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Registry.
var _ Registry = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite registry at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "registry")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection enforces foreign keys.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("registry initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS clients (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			tenant_id  TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			is_active  INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			username        TEXT NOT NULL,
			email           TEXT NOT NULL UNIQUE,
			password_hash   TEXT NOT NULL,
			profile_picture TEXT,
			created_at      TEXT NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1,
			client_id       TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_client ON accounts(client_id);

		-- client_id and tenant_id never change after creation
		CREATE TRIGGER IF NOT EXISTS trg_clients_tenant_id_immutable
			BEFORE UPDATE OF tenant_id ON clients
			WHEN NEW.tenant_id IS NOT OLD.tenant_id
			BEGIN SELECT RAISE(ABORT, 'tenant_id is immutable'); END;

		CREATE TRIGGER IF NOT EXISTS trg_accounts_client_id_immutable
			BEFORE UPDATE OF client_id ON accounts
			WHEN NEW.client_id IS NOT OLD.client_id
			BEGIN SELECT RAISE(ABORT, 'client_id is immutable'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the registry database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing registry")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation
// on the given table column, e.g. "clients.email".
func isUniqueConstraintError(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
