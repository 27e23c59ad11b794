package loader

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"romeetl/internal/errs"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/internal/transformer"
	"romeetl/pkg/records"
)

// CollectRomeCodes maps every loaded ROME code (e.g. "A1101") to the Ogr code
// of its Rome row. Codes are trimmed.
func CollectRomeCodes(ctx context.Context, q storage.Querier) (map[string]int64, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT %s, %s FROM %s",
		storage.Ident("code_rome"), storage.Ident(schema.OgrField), storage.Ident(schema.Rome.Name)))
	if err != nil {
		return nil, fmt.Errorf("loader: collect rome codes: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		code, _ := r.String("code_rome")
		code = strings.TrimSpace(code)
		ogr, ok := r.Int64(schema.OgrField)
		if code == "" || !ok {
			continue
		}
		out[code] = ogr
	}
	return out, nil
}

// LoadMobilite loads the mobility records of one card section. The target of
// each record is the first whitespace-separated token of code_rome_cible,
// resolved through romeCodes; an unknown token is an ErrMalformedInput.
func (l *Loader) LoadMobilite(ctx context.Context, tx storage.Tx, seq iter.Seq2[records.Record, error], kind schema.MobiliteType, origine int64, romeCodes map[string]int64) (int64, error) {
	return l.load(ctx, tx, schema.Mobilite, mobiliteRows(seq, kind, origine, romeCodes))
}

func mobiliteRows(seq iter.Seq2[records.Record, error], kind schema.MobiliteType, origine int64, romeCodes map[string]int64) iter.Seq2[records.Record, error] {
	return each(seq, func(rec records.Record) error {
		return resolveMobilite(rec, kind, origine, romeCodes)
	})
}

func resolveMobilite(rec records.Record, kind schema.MobiliteType, origine int64, romeCodes map[string]int64) error {
	raw, _ := rec.String("code_rome_cible")
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return errs.Malformedf("mobilite: empty code_rome_cible")
	}
	cible, ok := romeCodes[tokens[0]]
	if !ok {
		return errs.Malformedf("mobilite: unknown rome code %q", tokens[0])
	}
	rec["origine"] = origine
	rec["cible"] = cible
	rec["type"] = int64(kind)
	return transformer.Apply(rec, schema.Mobilite, nil)
}

// card is one fiche of the cards file with its resolved Rome.
type card struct {
	node *xmlparser.Node
	rome int64
}

func (c card) defaults(bloc any) transformer.Defaults {
	return transformer.Defaults{"rome": c.rome, "bloc": bloc}
}

// section returns the sub-element at path, or nil when any step is missing.
func (c card) section(path ...string) *xmlparser.Node {
	n := c.node
	for _, p := range path {
		n = n.Find(p)
	}
	return n
}

// bloc is one activity section of a card. Value is stamped on its link rows:
// nil for the base bloc, position_bloc for a specific one.
type bloc struct {
	node  *xmlparser.Node
	value any
}

// blocs returns the base bloc followed by every specific bloc.
func (c card) blocs() []bloc {
	out := []bloc{{node: c.section("les_activites_de_base")}}
	spec := c.section("les_activites_specifique")
	if spec == nil {
		return out
	}
	for _, b := range spec.Children {
		pos, _ := b.ChildText("position_bloc")
		var v any
		if strings.TrimSpace(pos) != "" {
			v = pos
		}
		out = append(out, bloc{node: b, value: v})
	}
	return out
}

// parseCards resolves the Rome of every card. A card without numero or Rome
// code, or whose Rome is not loaded, is an ErrMalformedInput.
func parseCards(root *xmlparser.Node, romeCodes map[string]int64) ([]card, error) {
	known := make(map[int64]struct{}, len(romeCodes))
	for _, ogr := range romeCodes {
		known[ogr] = struct{}{}
	}
	cards := make([]card, 0, len(root.Children))
	for i, n := range root.Children {
		if _, err := n.RequireText("numero"); err != nil {
			return nil, fmt.Errorf("card #%d: %w", i+1, err)
		}
		br := n.Find("bloc_code_rome")
		if br == nil {
			return nil, fmt.Errorf("card #%d: %w", i+1, errs.Malformedf("<%s> has no <bloc_code_rome> child", n.Tag))
		}
		raw, err := br.RequireText("code_ogr")
		if err != nil {
			return nil, fmt.Errorf("card #%d: %w", i+1, err)
		}
		v, err := transformer.Coerce(schema.Field{Kind: schema.ForeignKey}, raw)
		if err != nil {
			return nil, fmt.Errorf("card #%d: rome code_ogr: %w", i+1, err)
		}
		rome, ok := v.(int64)
		if _, loaded := known[rome]; !ok || !loaded {
			return nil, fmt.Errorf("card #%d: %w", i+1, errs.Malformedf("unknown rome code_ogr %q", raw))
		}
		cards = append(cards, card{node: n, rome: rome})
	}
	return cards, nil
}

// eachCard concatenates the rows extract yields for every card.
func eachCard(cards []card, extract func(card) iter.Seq2[records.Record, error]) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for _, c := range cards {
			for rec, err := range extract(c) {
				if !yield(rec, err) || err != nil {
					return
				}
			}
		}
	}
}

// cardPart is one table fed from the cards file.
type cardPart struct {
	entity  *schema.Entity
	extract func(card) iter.Seq2[records.Record, error]
}

var cardParts = []cardPart{
	{schema.Fiche, func(c card) iter.Seq2[records.Record, error] {
		return func(yield func(records.Record, error) bool) {
			rec := c.node.Record()
			err := transformer.Apply(rec, schema.Fiche, c.defaults(nil))
			if err != nil {
				yield(nil, err)
				return
			}
			yield(rec, nil)
		}
	}},
	{schema.RomeAppellation, func(c card) iter.Seq2[records.Record, error] {
		return transformer.Stream(c.section("appellation").Seq(), schema.RomeAppellation, c.defaults(nil))
	}},
	{schema.RomeEnvTravail, func(c card) iter.Seq2[records.Record, error] {
		return transformer.Stream(c.section("environnement_de_travail").Seq(), schema.RomeEnvTravail, c.defaults(nil))
	}},
	{schema.RomeActivite, func(c card) iter.Seq2[records.Record, error] {
		var seqs []iter.Seq2[records.Record, error]
		for _, b := range c.blocs() {
			acts := b.node.Find("activite_de_base")
			if acts == nil {
				acts = b.node.Find("activite_specifique")
			}
			seqs = append(seqs, transformer.Stream(acts.Seq(), schema.RomeActivite, c.defaults(b.value)))
		}
		return chain(seqs...)
	}},
	{schema.RomeCompetence, func(c card) iter.Seq2[records.Record, error] {
		var seqs []iter.Seq2[records.Record, error]
		for _, b := range c.blocs() {
			for _, tag := range []string{"savoir_theorique_et_proceduraux", "savoir_action"} {
				seqs = append(seqs, transformer.Stream(b.node.Find(tag).Seq(), schema.RomeCompetence, c.defaults(b.value)))
			}
		}
		return chain(seqs...)
	}},
}

// LoadCards loads the fiche of every card together with its link rows and
// both mobility lists. Each table is fed from all cards in turn so that rows
// of many cards share a bulk insert. Missing card sections are empty. A link
// to a leaf code absent from the loaded referentials is an ErrMalformedInput.
func (l *Loader) LoadCards(ctx context.Context, tx storage.Tx, root *xmlparser.Node, romeCodes map[string]int64) (int64, error) {
	if root == nil {
		return 0, errs.Malformedf("cards: empty document")
	}
	cards, err := parseCards(root, romeCodes)
	if err != nil {
		return 0, fmt.Errorf("loader: cards: %w", err)
	}

	entities := make([]*schema.Entity, len(cardParts))
	for i, part := range cardParts {
		entities[i] = part.entity
	}
	refs, err := collectRefs(ctx, tx, entities, schema.Rome.Name)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, part := range cardParts {
		rows := each(eachCard(cards, part.extract), func(rec records.Record) error {
			return refs.check(part.entity, rec)
		})
		n, err := l.load(ctx, tx, part.entity, rows)
		total += n
		if err != nil {
			return total, err
		}
	}
	for _, kind := range schema.MobiliteTypes {
		n, err := l.load(ctx, tx, schema.Mobilite, eachCard(cards, func(c card) iter.Seq2[records.Record, error] {
			return mobiliteRows(c.section("les_mobilites", kind.String()).Seq(), kind, c.rome, romeCodes)
		}))
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", kind, err)
		}
	}
	return total, nil
}
