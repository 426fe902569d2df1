// Package sqlite is a relational remote store backed by a SQLite file. It is
// used for local runs and as the reference backend in tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Upserter writes records with INSERT ... ON CONFLICT(id) DO UPDATE.
type Upserter struct {
	db *sql.DB
}

// Open creates the database file if needed, migrates it and returns an Upserter.
func Open(dbPath string) (*Upserter, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: creating db directory: %w", err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("Open: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping database: %w", err)
	}
	// SQLite allows one writer; concurrent units queue on this connection.
	db.SetMaxOpenConns(1)

	return &Upserter{db: db}, nil
}

// Close closes the database.
func (u *Upserter) Close() error {
	if u.db != nil {
		return u.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for inspection.
func (u *Upserter) DB() *sql.DB {
	return u.db
}

// Upsert implements remote.Upserter. Each record is its own statement so a
// constraint violation only fails that record.
func (u *Upserter) Upsert(ctx context.Context, collection remote.Collection, records []remote.Record, owner remote.Owner) error {
	if err := owner.Validate(collection); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	failures := &remote.PartialFailure{Collection: collection}
	for _, r := range records {
		fields := r.Fields()
		values, err := fieldValues(fields)
		if err != nil {
			failures.Add(r.RecordID(), err)
			continue
		}
		if _, err := u.db.ExecContext(ctx, UpsertStatement(collection.Table(), fields), values...); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("Upsert: %w", ctx.Err())
			}
			failures.Add(r.RecordID(), err)
		}
	}
	return failures.ErrOrNil()
}

// UpsertStatement builds the statement for one row of table.
func UpsertStatement(table string, fields []remote.Field) string {
	cols := make([]string, 0, len(fields))
	marks := make([]string, 0, len(fields))
	sets := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, f.Name)
		marks = append(marks, "?")
		if f.Name != remote.ColumnID {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", f.Name, f.Name))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "), remote.ColumnID, strings.Join(sets, ", "),
	)
}

// fieldValues converts field values to driver values. Amounts are stored as exact text.
func fieldValues(fields []remote.Field) ([]any, error) {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string, bool:
			out = append(out, v)
		case *string:
			if v == nil {
				out = append(out, nil)
			} else {
				out = append(out, *v)
			}
		case decimal.Decimal:
			out = append(out, v.String())
		case time.Time:
			out = append(out, v.UTC().Format(time.RFC3339Nano))
		case *time.Time:
			if v == nil {
				out = append(out, nil)
			} else {
				out = append(out, v.UTC().Format(time.RFC3339Nano))
			}
		default:
			return nil, fmt.Errorf("field %s: unsupported value type %T", f.Name, f.Value)
		}
	}
	return out, nil
}

// ExistingIDs implements remote.Verifier.
func (u *Upserter) ExistingIDs(ctx context.Context, collection remote.Collection, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	if !collection.Valid() {
		return nil, fmt.Errorf("ExistingIDs: unknown collection %q", collection)
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf("SELECT id FROM %s WHERE id IN (%s)", collection.Table(), marks)
	qargs := make([]any, len(ids))
	for i, id := range ids {
		qargs[i] = id
	}

	rows, err := u.db.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, fmt.Errorf("ExistingIDs: querying %s: %w", collection.Table(), err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ExistingIDs: scanning: %w", err)
		}
		found[id] = true
	}
	return found, rows.Err()
}

// Count returns the number of rows in collection.
func (u *Upserter) Count(ctx context.Context, collection remote.Collection) (int, error) {
	if !collection.Valid() {
		return 0, fmt.Errorf("Count: unknown collection %q", collection)
	}
	var n int
	if err := u.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+collection.Table()).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

var (
	_ remote.Upserter = (*Upserter)(nil)
	_ remote.Verifier = (*Upserter)(nil)
)
