// Package postgres implements a Postgres repository using pgx v5. Bulk inserts
// use the COPY protocol inside the caller's transaction; deferred foreign keys
// are checked at commit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return Kind }

// Exec implements storage.Querier.
func (r *Repository) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, r.pool, query, args)
}

// Query implements storage.Querier.
func (r *Repository) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	return queryOn(ctx, r.pool, query, args)
}

// TableExists reports whether table resolves through the search path.
func (r *Repository) TableExists(ctx context.Context, table string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: table exists %s: %w", table, pgError(err))
	}
	return ok, nil
}

// Begin implements storage.Repository.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", pgError(err))
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx transaction as a storage.Tx.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, t.tx, query, args)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	return queryOn(ctx, t.tx, query, args)
}

// CopyFrom streams rows into table over the COPY protocol.
func (t *Tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("postgres: copy into %s: %w", table, pgError(err))
	}
	return n, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", pgError(err))
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// pgxQuerier is the subset shared by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func execOn(ctx context.Context, q pgxQuerier, query string, args []any) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}
	tag, err := q.Exec(ctx, Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: exec: %w", pgError(err))
	}
	return tag.RowsAffected(), nil
}

func queryOn(ctx context.Context, q pgxQuerier, query string, args []any) ([]records.Record, error) {
	rows, err := q.Query(ctx, Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", pgError(err))
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		rec := make(records.Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", pgError(err))
	}
	return out, nil
}

// normalize maps pgx values onto the storage.Querier conventions.
func normalize(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case []byte:
		return string(x)
	default:
		return v
	}
}

// pgError surfaces the server-side detail of a *pgconn.PgError, which pgx
// otherwise leaves out of Error().
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w: %s (%s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

// Rebind rewrites '?' placeholders into Postgres' positional $n form. Question
// marks inside quoted literals or identifiers are left alone.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var (
		sb    strings.Builder
		n     int
		quote byte
	)
	sb.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
