// Package mysql implements a MySQL repository using database/sql and
// go-sql-driver/mysql. Bulk inserts are multi-row INSERT statements executed
// inside the caller's transaction.
//
// MySQL has no deferrable constraints. A transaction turns
// FOREIGN_KEY_CHECKS off for its session when it begins; before committing it
// scans every foreign key of the database for orphans and turns the checks
// back on. DDL commits implicitly in MySQL, so a failed DDL stage is not
// rolled back.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// insertRows bounds the rows of one multi-row INSERT.
const insertRows = 500

// Config holds MySQL repository configuration.
type Config struct {
	DSN string // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/rome
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	dc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	if dc.DBName == "" {
		return nil, nil, fmt.Errorf("mysql dsn: database name must not be empty")
	}
	conn, err := mysql.NewConnector(dc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
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

// TableExists reports whether table exists in the connection's database.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("mysql: table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// Begin opens a transaction with foreign key checks off for its session.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mysql: begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("mysql: disable foreign keys: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a MySQL transaction implementing storage.Tx.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, t.tx, query, args)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	return queryOn(ctx, t.tx, query, args)
}

// CopyFrom inserts rows into table with multi-row INSERT statements of at
// most insertRows rows.
func (t *Tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: CopyFrom: columns must not be empty")
	}
	var inserted int64
	for start := 0; start < len(rows); start += insertRows {
		chunk := rows[start:min(start+insertRows, len(rows))]
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			if len(row) != len(columns) {
				return inserted, fmt.Errorf("mysql: CopyFrom: row length %d != columns length %d", len(row), len(columns))
			}
			args = append(args, row...)
		}
		n, err := execOn(ctx, t.tx, insertSQL(table, columns, len(chunk)), args)
		if err != nil {
			return inserted, fmt.Errorf("mysql: insert %s: %w", table, err)
		}
		inserted += n
	}
	return inserted, nil
}

// Commit fails with the first orphaned foreign key value, if any, and rolls
// back. Otherwise it turns foreign key checks back on and commits.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.checkOrphans(ctx); err != nil {
		_ = t.Rollback(ctx)
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		_ = t.tx.Rollback()
		return fmt.Errorf("mysql: enable foreign keys: %w", err)
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

// Rollback turns foreign key checks back on before the connection returns to
// the pool, then rolls back.
func (t *Tx) Rollback(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("mysql: rollback: %w", err)
	}
	return nil
}

const foreignKeys = `SELECT TABLE_NAME AS child, COLUMN_NAME AS col, REFERENCED_TABLE_NAME AS parent, REFERENCED_COLUMN_NAME AS pcol
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY TABLE_NAME, COLUMN_NAME`

// checkOrphans looks, for every foreign key of the database, for a value
// with no referenced row.
func (t *Tx) checkOrphans(ctx context.Context) error {
	fks, err := queryOn(ctx, t.tx, foreignKeys, nil)
	if err != nil {
		return err
	}
	for _, fk := range fks {
		child, _ := fk.String("child")
		col, _ := fk.String("col")
		parent, _ := fk.String("parent")
		pcol, _ := fk.String("pcol")
		rows, err := queryOn(ctx, t.tx, orphanSQL(child, col, parent, pcol), nil)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return fmt.Errorf("mysql: commit: %s.%s %v not found in %s", child, col, rows[0]["v"], parent)
		}
	}
	return nil
}

// orphanSQL selects one value of child.col missing from parent.pcol.
func orphanSQL(child, col, parent, pcol string) string {
	c, p := storage.Ident(col), storage.Ident(pcol)
	return fmt.Sprintf("SELECT c.%s AS v FROM %s c LEFT JOIN %s p ON p.%s = c.%s WHERE c.%s IS NOT NULL AND p.%s IS NULL LIMIT 1",
		c, storage.Ident(child), storage.Ident(parent), p, c, c, p)
}

// insertSQL builds a multi-row INSERT of n rows.
func insertSQL(table string, columns []string, n int) string {
	row := "(" + storage.Placeholders(len(columns)) + ")"
	values := strings.Repeat(row+", ", n-1) + row
	return "INSERT INTO " + storage.Ident(table) + " (" + storage.IdentList(columns) + ") VALUES " + values
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
		return 0, fmt.Errorf("mysql: exec: %w", err)
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
		return nil, fmt.Errorf("mysql: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("mysql: columns: %w", err)
	}

	var out []records.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("mysql: scan: %w", err)
		}
		rec := make(records.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: rows: %w", err)
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
	case uint64:
		return int64(x)
	default:
		return v
	}
}

// Rebind rewrites double-quoted identifiers into backticks, so statements do
// not depend on the ANSI_QUOTES SQL mode. '?' is native.
func Rebind(query string) string {
	return storage.Rewrite(query, nil, myIdent)
}

// myIdent quotes an identifier with backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
