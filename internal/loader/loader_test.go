package loader_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"romeetl/internal/errs"
	"romeetl/internal/loader"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/internal/testutil/romefixture"
	"romeetl/pkg/records"
)

func query(tb testing.TB, q storage.Querier, stmt string, args ...any) []records.Record {
	tb.Helper()
	rows, err := q.Query(context.Background(), stmt, args...)
	if err != nil {
		tb.Fatalf("query %q: %v", stmt, err)
	}
	return rows
}

func count(tb testing.TB, q storage.Querier, table string) int64 {
	tb.Helper()
	rows := query(tb, q, fmt.Sprintf(`SELECT count(*) AS n FROM "%s"`, table))
	n, _ := rows[0].Int64("n")
	return n
}

// pairs renders rows as "a/b" strings using fmt for nil-friendly output.
func pairs(rows []records.Record, a, b string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = fmt.Sprintf("%v/%v", r[a], r[b])
	}
	return out
}

func TestRunRowCounts(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)
	want := map[string]int64{
		"ogr":              9,
		"activite":         2,
		"appellation":      2,
		"env_travail":      1,
		"competence":       2,
		"rome":             2,
		"fiche":            2,
		"rome_appellation": 2,
		"rome_env_travail": 1,
		"rome_activite":    2,
		"rome_competence":  3,
		"mobilite":         2,
		"referentiel":      2,
		"arborescence":     8,
		"load_info":        1,
	}
	for table, n := range want {
		if got := count(t, repo, table); got != n {
			t.Errorf("count(%s) = %d, want %d", table, got, n)
		}
	}
}

func TestOgrClosure(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)
	for _, typ := range schema.OgrTypes {
		e := typ.Entity()
		rows := query(t, repo, fmt.Sprintf(
			`SELECT t."ogr" AS code, o."type" AS type FROM "%s" t LEFT JOIN "ogr" o ON o."code" = t."ogr"`, e.Name))
		for _, r := range rows {
			got, ok := r.Int64("type")
			if !ok || got != int64(typ) {
				t.Errorf("%s code %v: ogr type = %v, want %d", e.Name, r["code"], r["type"], typ)
			}
		}
	}
}

func TestArborescenceItemType(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)
	rows := query(t, repo, `SELECT "ogr", "item", "item_type", "type_noeud" FROM "arborescence" ORDER BY "ogr"`)
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = fmt.Sprintf("%v:%v:%v:%v", r["ogr"], r["item"], r["item_type"], r["type_noeud"])
	}
	want := []string{
		"1000:<nil>:<nil>:0",
		"1001:<nil>:<nil>:1",
		"1002:7:3:2",
		"1003:8:3:2",
		"2000:<nil>:<nil>:0",
		"2001:1:0:2",
		"2002:2:0:2",
		"2003:<nil>:<nil>:1",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("arborescence = %v, want %v", got, want)
	}
}

func TestTwoRootsForest(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)
	refs := pairs(query(t, repo, `SELECT "ogr", "libelle" FROM "referentiel" ORDER BY "ogr"`), "ogr", "libelle")
	if got, want := strings.Join(refs, ","), "1000/R1,2000/R2"; got != want {
		t.Fatalf("referentiel = %s, want %s", got, want)
	}

	rows := query(t, repo, `SELECT "ogr", "pere", "referentiel" FROM "arborescence"`)
	parent := map[int64]int64{}
	ref := map[int64]int64{}
	for _, r := range rows {
		ogr, _ := r.Int64("ogr")
		ref[ogr], _ = r.Int64("referentiel")
		if p, ok := r.Int64("pere"); ok {
			parent[ogr] = p
		}
	}
	for ogr := range ref {
		cur, steps := ogr, 0
		for {
			p, ok := parent[cur]
			if !ok {
				break
			}
			if ref[p] != ref[ogr] {
				t.Errorf("node %d (referentiel %d) has parent %d in referentiel %d", ogr, ref[ogr], p, ref[p])
			}
			cur = p
			if steps++; steps > len(ref) {
				t.Fatalf("cycle from node %d", ogr)
			}
		}
		if ref[cur] != cur {
			t.Errorf("root %d has referentiel %d", cur, ref[cur])
		}
	}
}

func TestCardLinks(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)

	acts := query(t, repo, `SELECT "activite", "bloc" FROM "rome_activite" WHERE "rome" = 1 ORDER BY "activite"`)
	if got, want := strings.Join(pairs(acts, "activite", "bloc"), ","), "100/<nil>,101/1"; got != want {
		t.Errorf("rome_activite = %s, want %s", got, want)
	}
	comps := query(t, repo, `SELECT "competence", "bloc" FROM "rome_competence" WHERE "rome" = 1 ORDER BY "competence", "bloc"`)
	if got, want := strings.Join(pairs(comps, "competence", "bloc"), ","), "200/<nil>,201/<nil>,201/1"; got != want {
		t.Errorf("rome_competence = %s, want %s", got, want)
	}
	envs := query(t, repo, `SELECT "env_travail", "bloc" FROM "rome_env_travail"`)
	if got, want := strings.Join(pairs(envs, "env_travail", "bloc"), ","), "300/<nil>"; got != want {
		t.Errorf("rome_env_travail = %s, want %s", got, want)
	}

	mobs := query(t, repo, `SELECT "origine" || '>' || "cible" AS edge, "type" FROM "mobilite" ORDER BY "origine"`)
	if got, want := strings.Join(pairs(mobs, "edge", "type"), ","), "1>2/0,2>1/1"; got != want {
		t.Errorf("mobilite = %s, want %s", got, want)
	}

	fiches := query(t, repo, `SELECT "rome", "numero", "definition", "condition_exercice_activite", "classement_emploi_metier" FROM "fiche" ORDER BY "rome"`)
	if len(fiches) != 2 {
		t.Fatalf("fiche rows = %d, want 2", len(fiches))
	}
	if got := fiches[0]["condition_exercice_activite"]; got != "En extérieur, prime de 100 €." {
		t.Errorf("latin-9 text = %q", got)
	}
	if got := fiches[0]["classement_emploi_metier"]; got != nil {
		t.Errorf("empty text = %#v, want nil", got)
	}
	if got := fiches[1]["condition_exercice_activite"]; got != nil {
		t.Errorf("missing text = %#v, want nil", got)
	}
}

func TestLoadInfo(t *testing.T) {
	t.Parallel()

	repo := romefixture.Default().Load(t)
	rows := query(t, repo, `SELECT "archive", "checksum", "loaded_at" FROM "load_info"`)
	if rows[0]["archive"] != "fixture.zip" || rows[0]["checksum"] != "0000000000000000" {
		t.Fatalf("load_info = %v", rows[0])
	}
	if s, _ := rows[0].String("loaded_at"); s == "" {
		t.Fatal("loaded_at is empty")
	}
}

func runRelease(tb testing.TB, r romefixture.Release) (storage.Repository, error) {
	tb.Helper()
	repo := romefixture.OpenSQLite(tb)
	l := &loader.Loader{BatchSize: 3}
	err := l.Run(context.Background(), repo, loader.Source{FS: r.FS(tb), Name: "x.zip"}, romefixture.Files(), false)
	return repo, err
}

func TestRunMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*romefixture.Release)
		// committed lists tables expected to hold rows after the failure.
		committed []string
		empty     []string
		// msg, when set, must appear in the error text.
		msg string
	}{
		{
			name: "unknown mobility target",
			mutate: func(r *romefixture.Release) {
				r.Fiche = strings.Replace(r.Fiche, "A1201 Bûcheronnage", "Z9999 Inconnu", 1)
			},
			committed: []string{"rome", "appellation"},
			empty:     []string{"fiche", "rome_appellation", "mobilite"},
		},
		{
			name: "card without numero",
			mutate: func(r *romefixture.Release) {
				r.Fiche = strings.Replace(r.Fiche, "<numero>2</numero>", "", 1)
			},
			committed: []string{"rome"},
			empty:     []string{"fiche"},
		},
		{
			name: "card for unknown rome",
			mutate: func(r *romefixture.Release) {
				r.Fiche = strings.Replace(r.Fiche, "<code_ogr>2</code_ogr></bloc_code_rome>", "<code_ogr>99</code_ogr></bloc_code_rome>", 1)
			},
			committed: []string{"rome"},
			empty:     []string{"fiche"},
		},
		{
			name: "non numeric code",
			mutate: func(r *romefixture.Release) {
				r.Competence = strings.Replace(r.Competence, "<code_ogr>201</code_ogr>", "<code_ogr>x201</code_ogr>", 1)
			},
			committed: []string{"activite", "appellation", "env_travail"},
			empty:     []string{"competence", "rome"},
		},
		{
			name: "unknown parent code",
			mutate: func(r *romefixture.Release) {
				r.Arborescence = strings.Replace(r.Arborescence, "<code_pere>R2.A</code_pere>", "<code_pere>R9</code_pere>", 1)
			},
			committed: []string{"fiche", "mobilite"},
			empty:     []string{"arborescence", "referentiel"},
		},
		{
			name: "unknown node kind",
			mutate: func(r *romefixture.Release) {
				r.Arborescence = strings.Replace(r.Arborescence, "<libelle_noeud>NOEUD</libelle_noeud>", "<libelle_noeud>BRANCHE</libelle_noeud>", 1)
			},
			committed: []string{"fiche"},
			empty:     []string{"arborescence"},
		},
		{
			name: "link to unknown appellation",
			mutate: func(r *romefixture.Release) {
				r.Fiche = strings.Replace(r.Fiche, "<item_app><code_ogr>7</code_ogr>", "<item_app><code_ogr>77</code_ogr>", 1)
			},
			committed: []string{"rome", "appellation"},
			empty:     []string{"fiche", "rome_appellation"},
			msg:       "appellation 77 not found in appellation",
		},
		{
			name: "link without target code",
			mutate: func(r *romefixture.Release) {
				r.Fiche = strings.Replace(r.Fiche, "<item_env><code_ogr>300</code_ogr>", "<item_env>", 1)
			},
			committed: []string{"env_travail"},
			empty:     []string{"fiche", "rome_env_travail"},
			msg:       "rome_env_travail: missing code_ogr",
		},
		{
			name: "node item missing from ogr",
			mutate: func(r *romefixture.Release) {
				r.Arborescence = strings.Replace(r.Arborescence, "<code_item_arbor_associe>7</code_item_arbor_associe>", "<code_item_arbor_associe>999</code_item_arbor_associe>", 1)
			},
			committed: []string{"fiche", "mobilite"},
			empty:     []string{"arborescence", "referentiel"},
			msg:       "item 999 not found in ogr",
		},
		{
			name: "duplicate node code",
			mutate: func(r *romefixture.Release) {
				r.Arborescence = strings.Replace(r.Arborescence, "<code_noeud>R1.A.2</code_noeud>", "<code_noeud>R1.A.1</code_noeud>", 1)
			},
			committed: []string{"fiche"},
			empty:     []string{"arborescence"},
			msg:       `node code "R1.A.1"`,
		},
		{
			name: "broken xml",
			mutate: func(r *romefixture.Release) {
				r.Rome = strings.Replace(r.Rome, "</romes>", "", 1)
			},
			committed: []string{"competence"},
			empty:     []string{"rome"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := romefixture.Default()
			tt.mutate(&r)
			repo, err := runRelease(t, r)
			if !errors.Is(err, errs.ErrMalformedInput) {
				t.Fatalf("Run error = %v, want ErrMalformedInput", err)
			}
			if tt.msg != "" && !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("Run error = %v, want it to mention %q", err, tt.msg)
			}
			for _, table := range tt.committed {
				if count(t, repo, table) == 0 {
					t.Errorf("%s is empty, want rows of the committed stages", table)
				}
			}
			for _, table := range tt.empty {
				if n := count(t, repo, table); n != 0 {
					t.Errorf("%s has %d rows after rollback", table, n)
				}
			}
		})
	}
}

func TestRunConflict(t *testing.T) {
	t.Parallel()

	r := romefixture.Default()
	repo, err := runRelease(t, r)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	l := &loader.Loader{}
	src := loader.Source{FS: r.FS(t), Name: "again.zip"}
	if err := l.Run(context.Background(), repo, src, romefixture.Files(), false); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second Run error = %v, want ErrConflict", err)
	}
	if err := l.Run(context.Background(), repo, src, romefixture.Files(), true); err != nil {
		t.Fatalf("overwrite Run: %v", err)
	}
	if got := count(t, repo, "ogr"); got != 9 {
		t.Fatalf("ogr rows after overwrite = %d, want 9", got)
	}
	rows := query(t, repo, `SELECT "archive" FROM "load_info"`)
	if len(rows) != 1 || rows[0]["archive"] != "again.zip" {
		t.Fatalf("load_info after overwrite = %v", rows)
	}
}

func TestRunConflictOnExistingFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "other.db")
	open := func() storage.Repository {
		repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
		if err != nil {
			t.Fatalf("open %s: %v", path, err)
		}
		t.Cleanup(repo.Close)
		return repo
	}
	if _, err := open().Exec(ctx, `CREATE TABLE "notes" ("id" INTEGER)`); err != nil {
		t.Fatalf("create notes: %v", err)
	}

	repo := open()
	r := romefixture.Default()
	l := &loader.Loader{}
	src := loader.Source{FS: r.FS(t), Name: "x.zip"}
	if err := l.Run(ctx, repo, src, romefixture.Files(), false); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("Run error = %v, want ErrConflict", err)
	}
	if ok, _ := repo.TableExists(ctx, "ogr"); ok {
		t.Fatal("ogr created despite the conflict")
	}
	if err := l.Run(ctx, repo, src, romefixture.Files(), true); err != nil {
		t.Fatalf("overwrite Run: %v", err)
	}
	if ok, _ := repo.TableExists(ctx, "notes"); !ok {
		t.Fatal("overwrite dropped an unrelated table")
	}
}

// stagedRepo creates the tables and loads the Rome referential.
func stagedRepo(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo := romefixture.OpenSQLite(t)
	l := &loader.Loader{}
	err := storage.WithTx(ctx, repo, func(tx storage.Tx) error {
		if err := storage.CreateTables(ctx, repo.Kind(), tx, schema.All()); err != nil {
			return err
		}
		rome := romefixture.Encode(t, romefixture.Default().Rome)
		_, err := l.Load(ctx, tx, schema.Rome, xmlparser.Stream(strings.NewReader(string(rome))), nil)
		return err
	})
	if err != nil {
		t.Fatalf("stage rome: %v", err)
	}
	return repo
}

func TestCollectRomeCodes(t *testing.T) {
	t.Parallel()

	repo := stagedRepo(t)
	codes, err := loader.CollectRomeCodes(context.Background(), repo)
	if err != nil {
		t.Fatalf("CollectRomeCodes: %v", err)
	}
	if len(codes) != 2 || codes["A1101"] != 1 || codes["A1201"] != 2 {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRunTrimsRomeCodes(t *testing.T) {
	t.Parallel()

	r := romefixture.Default()
	r.Rome = strings.Replace(r.Rome, "<code_rome>A1201</code_rome>", "<code_rome>\n  A1201 </code_rome>", 1)
	repo, err := runRelease(t, r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	codes, err := loader.CollectRomeCodes(context.Background(), repo)
	if err != nil {
		t.Fatalf("CollectRomeCodes: %v", err)
	}
	if codes["A1201"] != 2 {
		t.Fatalf("codes = %v, want A1201 -> 2", codes)
	}
	rows := query(t, repo, `SELECT "origine", "cible" FROM "mobilite" ORDER BY "origine"`)
	if got, want := strings.Join(pairs(rows, "origine", "cible"), ","), "1/2,2/1"; got != want {
		t.Fatalf("mobilite = %s, want %s", got, want)
	}
}

func TestLoadTagsOgrEagerly(t *testing.T) {
	t.Parallel()

	repo := stagedRepo(t)
	rows := query(t, repo, `SELECT "code", "type" FROM "ogr" ORDER BY "code"`)
	if got, want := strings.Join(pairs(rows, "code", "type"), ","), "1/0,2/0"; got != want {
		t.Fatalf("ogr = %s, want %s", got, want)
	}
}

func TestLoadMobilite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := stagedRepo(t)
	codes, err := loader.CollectRomeCodes(ctx, repo)
	if err != nil {
		t.Fatalf("CollectRomeCodes: %v", err)
	}
	l := &loader.Loader{}

	seq := func(targets ...string) func(func(records.Record, error) bool) {
		return func(yield func(records.Record, error) bool) {
			for _, c := range targets {
				if !yield(records.Record{"code_rome_cible": c}, nil) {
					return
				}
			}
		}
	}

	err = storage.WithTx(ctx, repo, func(tx storage.Tx) error {
		_, err := l.LoadMobilite(ctx, tx, seq("  A1201   Bûcheronnage"), schema.SiEvolution, 1, codes)
		return err
	})
	if err != nil {
		t.Fatalf("LoadMobilite: %v", err)
	}
	rows := query(t, repo, `SELECT "origine", "cible", "type" FROM "mobilite"`)
	if len(rows) != 1 || rows[0]["cible"] != int64(2) || rows[0]["type"] != int64(schema.SiEvolution) {
		t.Fatalf("mobilite = %v", rows)
	}

	for _, target := range []string{"B0000 Inconnu", "   "} {
		err = storage.WithTx(ctx, repo, func(tx storage.Tx) error {
			_, err := l.LoadMobilite(ctx, tx, seq(target), schema.Proche, 1, codes)
			return err
		})
		if !errors.Is(err, errs.ErrMalformedInput) {
			t.Fatalf("LoadMobilite(%q) error = %v, want ErrMalformedInput", target, err)
		}
	}
	if got := count(t, repo, "mobilite"); got != 1 {
		t.Fatalf("mobilite rows = %d, want 1 after rollback", got)
	}
}

func TestBuildHierarchy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := romefixture.Default().Load(t)
	// Reload the arborescence over the already loaded leaf tables.
	doc := romefixture.Encode(t, romefixture.Default().Arborescence)
	open := func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(string(doc))), nil }

	if _, err := repo.Exec(ctx, `DELETE FROM "arborescence"`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Exec(ctx, `DELETE FROM "referentiel"`); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var h loader.Hierarchy
	l := &loader.Loader{BatchSize: 3}
	err := storage.WithTx(ctx, repo, func(tx storage.Tx) error {
		var err error
		h, err = l.BuildHierarchy(ctx, tx, open)
		return err
	})
	if err != nil {
		t.Fatalf("BuildHierarchy: %v", err)
	}
	if h.Nodes != 8 || len(h.Codes) != 8 {
		t.Fatalf("nodes=%d codes=%d, want 8", h.Nodes, len(h.Codes))
	}
	if h.Roots["R1"] != 1000 || h.Roots["R2"] != 2000 || len(h.Roots) != 2 {
		t.Fatalf("roots = %v", h.Roots)
	}
	if h.Codes["R1.A"] != 1001 {
		t.Fatalf("codes[R1.A] = %d", h.Codes["R1.A"])
	}
}

func TestBuildHierarchyDuplicateRoot(t *testing.T) {
	t.Parallel()

	r := romefixture.Default()
	r.Arborescence = strings.Replace(r.Arborescence, "<libelle_referentiel>R2</libelle_referentiel><libelle_noeud>RACINE", "<libelle_referentiel>R1</libelle_referentiel><libelle_noeud>RACINE", 1)
	if _, err := runRelease(t, r); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("Run error = %v, want ErrMalformedInput", err)
	}
}

func TestBackfillRepairsTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := romefixture.Default().Load(t)
	if _, err := repo.Exec(ctx, `UPDATE "ogr" SET "type" = NULL WHERE "code" = 7`); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := repo.Exec(ctx, `UPDATE "arborescence" SET "item_type" = NULL`); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := loader.Backfill(ctx, repo); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	// Running it twice changes nothing.
	if err := loader.Backfill(ctx, repo); err != nil {
		t.Fatalf("second Backfill: %v", err)
	}

	rows := query(t, repo, `SELECT "type" FROM "ogr" WHERE "code" = 7`)
	if rows[0]["type"] != int64(schema.OgrAppellation) {
		t.Fatalf("ogr 7 type = %v", rows[0]["type"])
	}
	rows = query(t, repo, `SELECT "item_type" FROM "arborescence" WHERE "ogr" = 2001`)
	if rows[0]["item_type"] != int64(schema.OgrRome) {
		t.Fatalf("node 2001 item_type = %v", rows[0]["item_type"])
	}
	if got := count(t, repo, "ogr"); got != 9 {
		t.Fatalf("ogr rows = %d, want 9", got)
	}
}
