// Package dao provides typed access to the chat database.
package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/devxfer/devxfer/internal/chat"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrUnknownTable is returned for a table the DAO has no mapping for
	ErrUnknownTable = errors.New("unknown table")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChatDAO reads and writes chat records. It satisfies both the persistence
// target of a receiving session and the record source of a sending one.
type ChatDAO struct {
	db *sql.DB
	q  querier
}

// NewChatDAO creates a new ChatDAO
func NewChatDAO(db *sql.DB) *ChatDAO {
	return &ChatDAO{db: db, q: db}
}

// Snapshot returns a reader pinned to one read transaction, so counts and
// walks agree while other connections keep writing. release ends the
// transaction.
func (d *ChatDAO) Snapshot(ctx context.Context) (r chat.Reader, release func() error, err error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin read snapshot: %w", err)
	}
	return &ChatDAO{db: d.db, q: tx}, tx.Rollback, nil
}

// InsertOrReplace writes rec, replacing any row with the same primary key.
func (d *ChatDAO) InsertOrReplace(ctx context.Context, rec chat.Record) error {
	spec, err := specFor(rec.Table())
	if err != nil {
		return err
	}
	if _, err := d.q.ExecContext(ctx, upsertSQL(rec.Table(), spec), spec.values(rec)...); err != nil {
		return fmt.Errorf("failed to write %s record: %w", rec.Table(), err)
	}
	return nil
}

// Exists reports whether a row with rec's primary key is stored.
func (d *ChatDAO) Exists(ctx context.Context, rec chat.Record) (bool, error) {
	spec, err := specFor(rec.Table())
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", rec.Table(), keyClause(spec))
	var one int
	err = d.q.QueryRowContext(ctx, query, rec.Key()...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s record: %w", rec.Table(), err)
	}
	return true, nil
}

// Get loads the row of table with the given primary key values.
func (d *ChatDAO) Get(ctx context.Context, table chat.Table, key ...any) (chat.Record, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	if len(key) != len(spec.keys) {
		return nil, fmt.Errorf("%s: want %d key values, got %d", table, len(spec.keys), len(key))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(spec.columns, ", "), table, keyClause(spec))
	rec, err := spec.scan(d.q.QueryRowContext(ctx, query, key...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s record: %w", table, err)
	}
	return rec, nil
}

// Count returns the number of rows in table.
func (d *ChatDAO) Count(ctx context.Context, table chat.Table) (int, error) {
	if _, err := specFor(table); err != nil {
		return 0, err
	}
	var n int
	if err := d.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Walk calls fn for every row of table in primary key order. It stops at the
// first error fn returns.
func (d *ChatDAO) Walk(ctx context.Context, table chat.Table, fn func(chat.Record) error) error {
	spec, err := specFor(table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(spec.columns, ", "), table, strings.Join(spec.keys, ", "))
	rows, err := d.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := spec.scan(rows)
		if err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func keyClause(spec tableSpec) string {
	parts := make([]string, len(spec.keys))
	for i, k := range spec.keys {
		parts[i] = k + " = ?"
	}
	return strings.Join(parts, " AND ")
}

func upsertSQL(table chat.Table, spec tableSpec) string {
	placeholders := make([]string, len(spec.columns))
	for i, col := range spec.columns {
		if expr, ok := spec.defaults[col]; ok {
			placeholders[i] = expr
		} else {
			placeholders[i] = "?"
		}
	}

	skip := make(map[string]bool, len(spec.keys)+len(spec.preserve))
	for _, k := range spec.keys {
		skip[k] = true
	}
	for _, p := range spec.preserve {
		skip[p] = true
	}
	var updates []string
	for _, col := range spec.columns {
		if !skip[col] {
			updates = append(updates, col+" = excluded."+col)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		table, strings.Join(spec.columns, ", "), strings.Join(placeholders, ", "), strings.Join(spec.keys, ", "))
	if len(updates) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET " + strings.Join(updates, ", "))
	}
	return b.String()
}
