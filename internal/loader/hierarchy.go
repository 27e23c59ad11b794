package loader

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"romeetl/internal/errs"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/internal/transformer"
	"romeetl/pkg/records"
)

// Hierarchy holds the lookups discovered by the first arborescence pass.
type Hierarchy struct {
	// Codes maps a node code (code_noeud) to the node's Ogr code.
	Codes map[string]int64
	// Roots maps a referential label to the Ogr code of its root node.
	Roots map[string]int64
	// Nodes is the number of arborescence rows inserted.
	Nodes int64

	// items holds the loaded Ogr codes a node item may name.
	items refSets
}

// BuildHierarchy loads the arborescence in two passes over the document
// returned by open. The first pass discovers node codes and roots; the
// second resolves parents and referentials and inserts the nodes, with the
// roots of each batch inserted into referentiel first. A node code seen
// twice, a parent code or referential label missing from the first pass, or
// an item absent from the Ogr table is an ErrMalformedInput.
func (l *Loader) BuildHierarchy(ctx context.Context, tx storage.Tx, open func() (io.ReadCloser, error)) (Hierarchy, error) {
	h, err := discover(open)
	if err != nil {
		return Hierarchy{}, fmt.Errorf("loader: arborescence: discover: %w", err)
	}
	h.items, err = collectRefs(ctx, tx, []*schema.Entity{schema.Arborescence}, schema.Arborescence.Name, schema.Referentiel.Name)
	if err != nil {
		return h, err
	}

	rc, err := open()
	if err != nil {
		return h, fmt.Errorf("loader: arborescence: %w", err)
	}
	defer rc.Close()

	n, err := storage.LoadBatches(ctx, schema.Arborescence.Name, h.nodes(xmlparser.Stream(rc)), l.batchSize(),
		func(ctx context.Context, batch []records.Record) (int64, error) {
			var roots []records.Record
			for _, rec := range batch {
				if rec["pere"] != nil {
					continue
				}
				root := records.Record{schema.OgrField: rec[schema.OgrField], "libelle": rec["libelle_referentiel"]}
				if err := transformer.Apply(root, schema.Referentiel, nil); err != nil {
					return 0, err
				}
				roots = append(roots, root)
			}
			if len(roots) > 0 {
				if _, err := l.insert(ctx, tx, schema.Referentiel, roots); err != nil {
					return 0, fmt.Errorf("insert referentiel: %w", err)
				}
			}
			return l.insert(ctx, tx, schema.Arborescence, batch)
		})
	h.Nodes = n
	if err != nil {
		return h, fmt.Errorf("loader: arborescence: %w", err)
	}
	return h, nil
}

func discover(open func() (io.ReadCloser, error)) (Hierarchy, error) {
	rc, err := open()
	if err != nil {
		return Hierarchy{}, err
	}
	defer rc.Close()

	h := Hierarchy{Codes: map[string]int64{}, Roots: map[string]int64{}}
	ogrField, _ := schema.Arborescence.Field(schema.OgrField)
	for rec, err := range xmlparser.Stream(rc) {
		if err != nil {
			return h, err
		}
		v, err := transformer.Coerce(ogrField, rec[ogrField.SourceKey()])
		if err != nil {
			return h, err
		}
		ogr, ok := v.(int64)
		if !ok {
			return h, errs.Malformedf("node without %s", ogrField.SourceKey())
		}
		code, _ := rec.String("code_noeud")
		if code = strings.TrimSpace(code); code != "" {
			if prev, dup := h.Codes[code]; dup {
				return h, errs.Malformedf("node code %q used by %d and %d", code, prev, ogr)
			}
			h.Codes[code] = ogr
		}
		if isRoot(rec) {
			label, _ := rec.String("libelle_referentiel")
			if prev, dup := h.Roots[label]; dup {
				return h, errs.Malformedf("referentiel %q has two roots (%d, %d)", label, prev, ogr)
			}
			h.Roots[label] = ogr
		}
	}
	return h, nil
}

func isRoot(rec records.Record) bool {
	pere, _ := rec.String("code_pere")
	return strings.TrimSpace(pere) == ""
}

// nodes resolves the raw nodes of seq into arborescence rows.
func (h Hierarchy) nodes(seq iter.Seq2[records.Record, error]) iter.Seq2[records.Record, error] {
	return each(seq, h.resolve)
}

func (h Hierarchy) resolve(rec records.Record) error {
	rec["pere"] = nil
	if !isRoot(rec) {
		code, _ := rec.String("code_pere")
		pere, ok := h.Codes[strings.TrimSpace(code)]
		if !ok {
			return errs.Malformedf("arborescence: unknown parent code %q", code)
		}
		rec["pere"] = pere
	}

	label, _ := rec.String("libelle_referentiel")
	ref, ok := h.Roots[label]
	if !ok {
		return errs.Malformedf("arborescence: unknown referentiel %q", label)
	}
	rec["referentiel"] = ref

	kindLabel, _ := rec.String("libelle_noeud")
	kind, err := schema.ParseNodeKind(kindLabel)
	if err != nil {
		return errs.Malformed("arborescence", err)
	}
	rec["type_noeud"] = int64(kind)
	rec["item_type"] = nil

	if err := transformer.Apply(rec, schema.Arborescence, nil); err != nil {
		return err
	}
	// Code 0 marks a structural node without item.
	if item, _ := rec.Int64("item"); item == 0 {
		rec["item"] = nil
	}
	return h.items.check(schema.Arborescence, rec)
}
