// Package mssql implements a Microsoft SQL Server repository using
// database/sql and go-mssqldb. Bulk inserts use the driver's bulk copy API
// inside the caller's transaction.
//
// SQL Server has no deferrable constraints. A transaction therefore disables
// the foreign keys of every constrained table when it begins and re-enables
// them WITH CHECK before it commits, so rows may arrive in any order within a
// stage but every committed row is verified.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return Kind }

// Exec implements storage.Querier.
func (r *Repository) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, r.db, query, args)
}

// Query implements storage.Querier.
func (r *Repository) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	return queryOn(ctx, r.db, query, args)
}

// TableExists reports whether a user table named table exists.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT CASE WHEN OBJECT_ID(@p1, N'U') IS NULL THEN 0 ELSE 1 END", msFQN(table)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("mssql: table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// Begin opens a transaction and disables the foreign keys of the existing
// constrained tables until Commit.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mssql: begin tx: %w", err)
	}
	t := &Tx{tx: tx}
	if err := t.constraints(ctx, "NOCHECK CONSTRAINT ALL"); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return t, nil
}

// Tx is an MSSQL transaction implementing storage.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, t.tx, query, args)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	return queryOn(ctx, t.tx, query, args)
}

// CopyFrom streams rows into table with the bulk copy API. The copy does not
// check foreign keys; Commit does.
func (t *Tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, err := t.tx.PrepareContext(ctx, mssql.CopyIn(msFQN(table), mssql.BulkOptions{KeepNulls: true}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mssql: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk row %s: %w", table, err)
		}
	}
	// The final Exec without arguments flushes the batch.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: bulk flush %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

// Commit re-enables and checks the foreign keys disabled by Begin, then
// commits. A violation rolls the transaction back.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.constraints(ctx, "WITH CHECK CHECK CONSTRAINT ALL"); err != nil {
		_ = t.tx.Rollback()
		return err
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("mssql: rollback: %w", err)
	}
	return nil
}

// constrainedTables lists the tables that own a foreign key.
const constrainedTables = "SELECT DISTINCT OBJECT_NAME(parent_object_id) AS name FROM sys.foreign_keys ORDER BY name"

// constraints applies ALTER TABLE <t> <clause> to every constrained table.
func (t *Tx) constraints(ctx context.Context, clause string) error {
	rows, err := queryOn(ctx, t.tx, constrainedTables, nil)
	if err != nil {
		return err
	}
	for _, r := range rows {
		name, _ := r["name"].(string)
		if name == "" {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, "ALTER TABLE "+msIdent(name)+" "+clause); err != nil {
			return fmt.Errorf("mssql: %s %s: %w", strings.ToLower(clause), name, err)
		}
	}
	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execOn(ctx context.Context, q execQuerier, query string, args []any) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mssql: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func queryOn(ctx context.Context, q execQuerier, query string, args []any) ([]records.Record, error) {
	rows, err := q.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("mssql: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("mssql: columns: %w", err)
	}

	var out []records.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("mssql: scan: %w", err)
		}
		rec := make(records.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: rows: %w", err)
	}
	return out, nil
}

// normalize maps driver values onto the storage.Querier conventions.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case uint8:
		return int64(x)
	default:
		return v
	}
}

// Rebind rewrites '?' placeholders into the driver's @pN form and
// double-quoted identifiers into brackets, so statements do not depend on the
// session's QUOTED_IDENTIFIER setting.
func Rebind(query string) string {
	return storage.Rewrite(query, func(n int) string { return "@p" + strconv.Itoa(n) }, msIdent)
}

// msIdent quotes an identifier using SQL Server's bracket syntax.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.rome" to
// "[dbo].[rome]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
