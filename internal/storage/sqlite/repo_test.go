package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"romeetl/internal/schema"
	"romeetl/internal/storage"
)

func newRepo(tb testing.TB) *Repository {
	tb.Helper()
	r, closeFn, err := NewRepository(context.Background(), Config{DSN: ":memory:"})
	if err != nil {
		tb.Fatalf("open sqlite :memory:: %v", err)
	}
	tb.Cleanup(closeFn)
	return r
}

func newSchemaRepo(tb testing.TB) *Repository {
	tb.Helper()
	r := newRepo(tb)
	if err := storage.CreateTables(context.Background(), Kind, r, schema.All()); err != nil {
		tb.Fatalf("create tables: %v", err)
	}
	return r
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{DSN: "  "}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestTableExists(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	ok, err := r.TableExists(ctx, "ogr")
	if err != nil || ok {
		t.Fatalf("TableExists before create = %v, %v; want false, nil", ok, err)
	}
	if err := storage.CreateTables(ctx, Kind, r, schema.All()); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	ok, err = r.TableExists(ctx, "ogr")
	if err != nil || !ok {
		t.Fatalf("TableExists after create = %v, %v; want true, nil", ok, err)
	}
	if err := storage.DropTables(ctx, r, schema.All()); err != nil {
		t.Fatalf("drop tables: %v", err)
	}
	if ok, _ := r.TableExists(ctx, "arborescence"); ok {
		t.Fatal("arborescence still exists after DropTables")
	}
}

// TestCopyFromDeferredForeignKeys inserts a link row before the rows it
// references; deferred constraints accept it at commit.
func TestCopyFromDeferredForeignKeys(t *testing.T) {
	t.Parallel()

	r := newSchemaRepo(t)
	ctx := context.Background()

	err := storage.WithTx(ctx, &wrappedRepo{Repository: r}, func(tx storage.Tx) error {
		steps := []struct {
			table string
			cols  []string
			rows  [][]any
		}{
			{"rome_appellation", []string{"rome", "appellation", "priorisation"}, [][]any{{int64(10), int64(7), nil}}},
			{"rome", []string{"ogr", "code_rome", "libelle"}, [][]any{{int64(10), "A1101", "Conduite d'engins"}}},
			{"appellation", []string{"ogr", "libelle_appellation", "libelle", "libelle_court"}, [][]any{{int64(7), "Tractoriste", nil, "Tract."}}},
			{"ogr", []string{"code", "type"}, [][]any{{int64(10), int64(0)}, {int64(7), int64(3)}}},
		}
		for _, s := range steps {
			n, err := tx.CopyFrom(ctx, s.table, s.cols, s.rows)
			if err != nil {
				return err
			}
			if n != int64(len(s.rows)) {
				t.Errorf("CopyFrom(%s) = %d, want %d", s.table, n, len(s.rows))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	rows, err := r.Query(ctx, `SELECT "code_rome", "ogr" FROM "rome"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if got, ok := rows[0]["ogr"].(int64); !ok || got != 10 {
		t.Fatalf("ogr = %#v, want int64(10)", rows[0]["ogr"])
	}
	if got, ok := rows[0]["code_rome"].(string); !ok || got != "A1101" {
		t.Fatalf("code_rome = %#v, want A1101", rows[0]["code_rome"])
	}
}

// TestCommitRejectsDanglingReference checks deferred foreign keys are still
// enforced when the transaction commits.
func TestCommitRejectsDanglingReference(t *testing.T) {
	t.Parallel()

	r := newSchemaRepo(t)
	ctx := context.Background()

	err := storage.WithTx(ctx, &wrappedRepo{Repository: r}, func(tx storage.Tx) error {
		_, err := tx.CopyFrom(ctx, "appellation", []string{"ogr", "libelle"}, [][]any{{int64(99), "orphan"}})
		return err
	})
	if err == nil {
		t.Fatal("commit succeeded with a dangling ogr reference")
	}

	rows, err := r.Query(ctx, `SELECT count(*) AS n FROM "appellation"`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if n := rows[0]["n"]; n != int64(0) {
		t.Fatalf("appellation rows = %v, want 0 after failed commit", n)
	}
}

func TestCopyFromRowLengthMismatch(t *testing.T) {
	t.Parallel()

	r := newSchemaRepo(t)
	ctx := context.Background()

	tx, err := r.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.CopyFrom(ctx, "ogr", []string{"code", "type"}, [][]any{{int64(1)}}); err == nil {
		t.Fatal("expected row length error")
	}
	if n, err := tx.CopyFrom(ctx, "ogr", []string{"code", "type"}, nil); err != nil || n != 0 {
		t.Fatalf("empty CopyFrom = %d, %v; want 0, nil", n, err)
	}
}

func TestExecReportsAffectedRows(t *testing.T) {
	t.Parallel()

	r := newSchemaRepo(t)
	ctx := context.Background()

	if _, err := r.Exec(ctx, `INSERT INTO "ogr" ("code", "type") VALUES (1, NULL), (2, NULL)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err := r.Exec(ctx, `UPDATE "ogr" SET "type" = ? WHERE "code" > ?`, 3, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("affected = %d, want 2", n)
	}
	if n, err := r.Exec(ctx, "   "); err != nil || n != 0 {
		t.Fatalf("blank Exec = %d, %v", n, err)
	}
}

func TestDBPath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		":memory:":                       "",
		"file::memory:?cache=shared":     "",
		"file:rome.db?mode=memory":       "",
		"rome.db":                        "rome.db",
		"file:rome.db?cache=shared":      "rome.db",
		"  /var/lib/rome/rome_v330.db  ": "/var/lib/rome/rome_v330.db",
	}
	for dsn, want := range cases {
		if got := dbPath(dsn); got != want {
			t.Errorf("dbPath(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestPreexisting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rome.db")

	r, closeFn, err := NewRepository(ctx, Config{DSN: path})
	if err != nil {
		t.Fatalf("open new file: %v", err)
	}
	if r.Preexisting() {
		t.Fatal("fresh file reported as preexisting")
	}
	if _, err := r.Exec(ctx, `CREATE TABLE "notes" ("id" INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	closeFn()

	r, closeFn, err = NewRepository(ctx, Config{DSN: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeFn()
	if !r.Preexisting() {
		t.Fatal("reopened file not reported as preexisting")
	}
	if newRepo(t).Preexisting() {
		t.Fatal(":memory: reported as preexisting")
	}
}
