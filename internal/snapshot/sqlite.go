package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultStorageKey is the key the mobile client persists its state under.
const DefaultStorageKey = "finance-app-state"

// SQLiteSource reads a snapshot from a key/value table shaped like the device's
// async storage export: one row per caller and key.
type SQLiteSource struct {
	db  *sql.DB
	key string
}

// OpenSQLiteSource opens (and if needed initialises) the database at dbPath.
func OpenSQLiteSource(dbPath, key string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("OpenSQLiteSource: opening database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteSource: %w", err)
	}
	return NewSQLiteSourceWithDB(db, key), nil
}

// NewSQLiteSourceWithDB wraps an already migrated database.
func NewSQLiteSourceWithDB(db *sql.DB, key string) *SQLiteSource {
	if key == "" {
		key = DefaultStorageKey
	}
	return &SQLiteSource{db: db, key: key}
}

// Fetch implements Source.
func (s *SQLiteSource) Fetch(ctx context.Context, callerID string) ([]byte, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_storage WHERE caller_id = ? AND key = ?`,
		callerID, s.key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("SQLiteSource.Fetch: querying local_storage: %w", err)
	}
	if !value.Valid {
		return nil, ErrNoSnapshot
	}
	return []byte(value.String), nil
}

// Put stores raw bytes for a caller. It is used to import device exports and in tests.
func (s *SQLiteSource) Put(ctx context.Context, callerID string, raw []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (caller_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id, key) DO UPDATE SET value = excluded.value`,
		callerID, s.key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("SQLiteSource.Put: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
