package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"romeetl/internal/errs"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// nodeFields are the arborescence fields kept on an assembled node.
var nodeFields = []string{schema.OgrField, "code_noeud", "libelle"}

// GetReferentielTree assembles the referential whose root node is root.
//
// Every node carries its ogr, code_noeud and libelle, the assembled item
// under the key named for the item's kind when it has one, and its children
// under ChildrenKey. The nodes bearing an item must all share one kind and
// the referential must have exactly one root; otherwise the tree is
// rejected with errs.ErrIntegrity.
func (s *Service) GetReferentielTree(ctx context.Context, root int64) (tree records.Record, err error) {
	defer observe("tree", time.Now(), &err)

	cols := append(append([]string{}, nodeFields...), "pere", "item", "item_type")
	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		storage.IdentList(cols), storage.Ident(schema.Arborescence.Name), storage.Ident("referentiel")), root)
	if err != nil {
		return nil, fmt.Errorf("query: referentiel %d: %w", root, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("query: referentiel %d: %w", root, errs.ErrNotFound)
	}

	kind, err := itemKind(rows)
	if err != nil {
		return nil, fmt.Errorf("query: referentiel %d: %w", root, err)
	}
	items, err := s.items(ctx, kind, root)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]records.Record, len(rows))
	children := map[int64][]int64{}
	var roots []int64
	for _, r := range rows {
		ogr, _ := r.Int64(schema.OgrField)
		n := r.Restrict(nodeFields)
		n[ChildrenKey] = []records.Record{}
		if item, ok := r.Int64("item"); ok {
			it, found := items[item]
			if !found {
				return nil, fmt.Errorf("query: node %d: %w", ogr, errs.Integrityf("%s %d has no row", kind, item))
			}
			n[kind.String()] = it
		}
		nodes[ogr] = n
		if pere, ok := r.Int64("pere"); ok {
			children[pere] = append(children[pere], ogr)
		} else {
			roots = append(roots, ogr)
		}
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("query: referentiel %d: %w", root, errs.Integrityf("%d root nodes", len(roots)))
	}

	// Depth-first with an explicit stack: deep trees never grow the call
	// stack. A node reached twice means a cycle through parent pointers.
	seen := map[int64]bool{roots[0]: true}
	stack := []int64{roots[0]}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		kids := children[id]
		sortByOgr(kids)
		list := make([]records.Record, 0, len(kids))
		for _, c := range kids {
			if seen[c] {
				return nil, fmt.Errorf("query: referentiel %d: %w", root, errs.Integrityf("cycle at node %d", c))
			}
			seen[c] = true
			list = append(list, nodes[c])
			stack = append(stack, c)
		}
		nodes[id][ChildrenKey] = list
	}
	return nodes[roots[0]], nil
}

// itemKind returns the single kind of the items referenced by rows.
func itemKind(rows []records.Record) (schema.OgrType, error) {
	kinds := map[int64]struct{}{}
	for _, r := range rows {
		if _, ok := r.Int64("item"); !ok {
			continue
		}
		t, ok := r.Int64("item_type")
		if !ok {
			ogr, _ := r.Int64(schema.OgrField)
			return 0, errs.Integrityf("node %d item has no type", ogr)
		}
		kinds[t] = struct{}{}
	}
	if len(kinds) != 1 {
		names := make([]string, 0, len(kinds))
		for k := range kinds {
			names = append(names, schema.OgrType(k).String())
		}
		return 0, errs.Integrityf("want one item kind, found %d [%s]", len(kinds), strings.Join(names, " "))
	}
	var t schema.OgrType
	for k := range kinds {
		t = schema.OgrType(k)
	}
	if !t.Valid() {
		return 0, errs.Integrityf("unknown item kind %d", int(t))
	}
	return t, nil
}

// items assembles every item of kind referenced by the referential root.
func (s *Service) items(ctx context.Context, kind schema.OgrType, root int64) (map[int64]records.Record, error) {
	e := kind.Entity()
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s = ?)",
		storage.IdentList(e.Columns()), storage.Ident(e.Name), storage.Ident(schema.OgrField),
		storage.Ident("item"), storage.Ident(schema.Arborescence.Name), storage.Ident("referentiel"))
	rows, err := s.q.Query(ctx, stmt, root)
	if err != nil {
		return nil, fmt.Errorf("query: %s items of referentiel %d: %w", e.Name, root, err)
	}
	out := make(map[int64]records.Record, len(rows))
	for _, r := range rows {
		ogr, _ := r.Int64(schema.OgrField)
		if kind == schema.OgrRome {
			p, err := s.profile(ctx, ogr)
			if err != nil {
				return nil, err
			}
			out[ogr] = p
			continue
		}
		out[ogr] = r.Restrict(e.Columns())
	}
	return out, nil
}
