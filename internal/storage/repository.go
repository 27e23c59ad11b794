// Package storage contains the storage-agnostic contracts used by the loader
// and the query layer, a registry of backends, and a generic batching loop.
//
// Backends (sqlite, postgres, mssql, mysql) register a Factory and a DDL builder for their
// kind at init time; importing internal/storage/all makes every built-in
// backend available. The rest of the program depends only on the interfaces
// below.
//
// Statements are written with '?' placeholders and double-quoted identifiers;
// backends whose driver expects another placeholder style rewrite them.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"romeetl/pkg/records"
)

// Querier runs statements outside or inside a transaction.
type Querier interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a statement and returns every row keyed by column name.
	// Integers are reported as int64 and text as string.
	Query(ctx context.Context, query string, args ...any) ([]records.Record, error)
}

// Tx is a transaction scope. One load stage runs inside one Tx.
type Tx interface {
	Querier
	// CopyFrom bulk-inserts rows (aligned to columns) into table and returns
	// the number of rows inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository is an open storage backend.
type Repository interface {
	Querier
	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)
	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, table string) (bool, error)
	// Kind returns the registered backend kind.
	Kind() string
	Close()
}

// Preexisting is implemented by backends whose destination can exist before
// any table is created, such as a database file.
type Preexisting interface {
	// Preexisting reports whether the destination existed when it was opened.
	Preexisting() bool
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Factory opens a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the Factory for kind. It is typically
// called from backend packages' init functions.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the backend selected by cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WithTx runs fn inside a transaction of repo, committing on success and
// rolling back when fn or the commit fails.
func WithTx(ctx context.Context, repo Repository, fn func(Tx) error) error {
	tx, err := repo.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
