// Package query reads a loaded ROME release back as plain nested values:
// records (map[string]any) and lists of records.
//
// GetByCode dispatches an Ogr code to the table owning it, GetProfile
// assembles a Rome with its fiche and link lists, and GetReferentielTree
// rebuilds one referential of the arborescence. Missing codes are
// errs.ErrNotFound; data breaking a model invariant is errs.ErrIntegrity.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"romeetl/internal/errs"
	"romeetl/internal/metrics"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// ChildrenKey holds the assembled children of a tree node.
const ChildrenKey = "children"

// Service runs read queries against a loaded store.
type Service struct {
	q storage.Querier
}

// New returns a Service reading through q.
func New(q storage.Querier) *Service {
	return &Service{q: q}
}

// GetByCode returns the row owning code, restricted to its declared fields.
// Rome codes are returned as full profiles.
func (s *Service) GetByCode(ctx context.Context, code int64) (rec records.Record, err error) {
	defer observe("code", time.Now(), &err)

	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		storage.Ident("type"), storage.Ident(schema.Ogr.Name), storage.Ident("code")), code)
	if err != nil {
		return nil, fmt.Errorf("query: ogr %d: %w", code, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("query: ogr %d: %w", code, errs.ErrNotFound)
	}
	tag, ok := rows[0].Int64("type")
	t := schema.OgrType(tag)
	if !ok || !t.Valid() {
		return nil, fmt.Errorf("query: ogr %d: %w", code, errs.Integrityf("unknown type tag %v", rows[0]["type"]))
	}
	return s.item(ctx, t, code)
}

// item assembles the typed row of code.
func (s *Service) item(ctx context.Context, t schema.OgrType, code int64) (records.Record, error) {
	if t == schema.OgrRome {
		rec, err := s.profile(ctx, code)
		if err != nil {
			return nil, missingTyped(t, code, err)
		}
		return rec, nil
	}
	e := t.Entity()
	rows, err := s.selectWhere(ctx, e, schema.OgrField, code)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, missingTyped(t, code, errs.ErrNotFound)
	}
	return rows[0].Restrict(e.Columns()), nil
}

// missingTyped reports an Ogr code whose typed row is absent; it matches
// both ErrNotFound and ErrIntegrity.
func missingTyped(t schema.OgrType, code int64, err error) error {
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return fmt.Errorf("query: %s %d: %w: %w", t, code, errs.ErrNotFound, errs.ErrIntegrity)
}

// GetProfile returns the Rome row romeOgr merged with its fiche, plus the
// appellation, activite, competence and env_travail lists. Each list entry
// merges the link row with the fields of its target.
func (s *Service) GetProfile(ctx context.Context, romeOgr int64) (rec records.Record, err error) {
	defer observe("profile", time.Now(), &err)
	return s.profile(ctx, romeOgr)
}

func (s *Service) profile(ctx context.Context, romeOgr int64) (records.Record, error) {
	rows, err := s.selectWhere(ctx, schema.Rome, schema.OgrField, romeOgr)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("query: rome %d: %w", romeOgr, errs.ErrNotFound)
	}
	data := rows[0].Restrict(schema.Rome.Columns())

	fiches, err := s.selectWhere(ctx, schema.Fiche, "rome", romeOgr)
	if err != nil {
		return nil, err
	}
	if len(fiches) > 0 {
		data.Merge(fiches[0].Restrict(schema.Fiche.Columns()))
	}

	for _, link := range schema.Links {
		list, err := s.links(ctx, link.Entity, link.Target, link.Key, romeOgr)
		if err != nil {
			return nil, err
		}
		data[link.Key] = list
	}
	return data, nil
}

// links returns the rows of link for romeOgr joined with their target.
func (s *Service) links(ctx context.Context, link, target *schema.Entity, key string, romeOgr int64) ([]records.Record, error) {
	cols := make([]string, 0, len(link.Fields)+len(target.Fields))
	for _, c := range link.Columns() {
		cols = append(cols, "l."+storage.Ident(c))
	}
	for _, c := range target.Columns() {
		cols = append(cols, "t."+storage.Ident(c))
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s l JOIN %s t ON t.%s = l.%s WHERE l.%s = ? ORDER BY l.%s, t.%s",
		strings.Join(cols, ", "),
		storage.Ident(link.Name), storage.Ident(target.Name),
		storage.Ident(schema.OgrField), storage.Ident(key),
		storage.Ident("rome"),
		storage.Ident("priorisation"), storage.Ident(schema.OgrField),
	)
	rows, err := s.q.Query(ctx, stmt, romeOgr)
	if err != nil {
		return nil, fmt.Errorf("query: %s of rome %d: %w", link.Name, romeOgr, err)
	}
	out := make([]records.Record, 0, len(rows))
	out = append(out, rows...)
	return out, nil
}

// ListReferentiels returns the referential roots ordered by code.
func (s *Service) ListReferentiels(ctx context.Context) (out []records.Record, err error) {
	defer observe("referentiels", time.Now(), &err)

	rows, err := s.q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		storage.IdentList(schema.Referentiel.Columns()), storage.Ident(schema.Referentiel.Name), storage.Ident(schema.OgrField)))
	if err != nil {
		return nil, fmt.Errorf("query: referentiels: %w", err)
	}
	out = make([]records.Record, 0, len(rows))
	return append(out, rows...), nil
}

func (s *Service) selectWhere(ctx context.Context, e *schema.Entity, col string, v any) ([]records.Record, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		storage.IdentList(e.Columns()), storage.Ident(e.Name), storage.Ident(col))
	rows, err := s.q.Query(ctx, stmt, v)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", e.Name, err)
	}
	return rows, nil
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordQuery(op, *err, time.Since(start))
}

func sortByOgr(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
