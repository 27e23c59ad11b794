// Package inspect surveys the referential members of a release archive
// against the entity model. It inventories the tags found under each record,
// keeps a few example texts per tag, and reports the tags the model reads but
// no record carries, along with the tags no field reads. A survey never
// touches a database, so it can vet a new release before it is loaded.
package inspect

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"romeetl/internal/config"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
)

// maxExamples caps the example texts kept per tag.
const maxExamples = 3

// TagAgg aggregates one tag across the records of a member.
type TagAgg struct {
	RecordsWith  int      `json:"records_with"`
	ExampleTexts []string `json:"example_texts,omitempty"`
}

// MemberReport describes one referential document.
type MemberReport struct {
	Entity       string            `json:"entity"`
	Path         string            `json:"path"`
	TotalRecords int               `json:"total_records"`
	Tags         map[string]TagAgg `json:"tags"`
	// Missing lists the source tags of the entity that no record carries.
	Missing []string `json:"missing,omitempty"`
	// Unmapped lists tags found in the document that no field reads.
	Unmapped []string `json:"unmapped,omitempty"`
}

// Report is the survey of a whole archive.
type Report struct {
	Archive  string         `json:"archive,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
	Members  []MemberReport `json:"members"`
}

// Clean reports whether every member carries all the tags its entity reads.
func (r Report) Clean() bool {
	for _, m := range r.Members {
		if len(m.Missing) > 0 {
			return false
		}
	}
	return true
}

// Member surveys one referential document read from r.
func Member(r io.Reader, e *schema.Entity) (MemberReport, error) {
	rep := MemberReport{Entity: e.Name, Tags: map[string]TagAgg{}}
	for rec, err := range xmlparser.Stream(r) {
		if err != nil {
			return rep, fmt.Errorf("inspect: %s: %w", e.Name, err)
		}
		rep.TotalRecords++
		for tag, v := range rec {
			agg := rep.Tags[tag]
			agg.RecordsWith++
			if s, _ := v.(string); strings.TrimSpace(s) != "" {
				agg.ExampleTexts = addExample(agg.ExampleTexts, strings.TrimSpace(s))
			}
			rep.Tags[tag] = agg
		}
	}

	read := map[string]bool{}
	for _, f := range e.Fields {
		key := f.SourceKey()
		read[key] = true
		if _, ok := rep.Tags[key]; !ok {
			rep.Missing = append(rep.Missing, key)
		}
	}
	for tag := range rep.Tags {
		if !read[tag] {
			rep.Unmapped = append(rep.Unmapped, tag)
		}
	}
	sort.Strings(rep.Missing)
	sort.Strings(rep.Unmapped)
	return rep, nil
}

// Survey inspects every referential member of files found in fsys, in load
// order.
func Survey(ctx context.Context, fsys fs.FS, files config.Files) (Report, error) {
	var rep Report
	for _, ref := range files.Referentiels() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		e, err := schema.Lookup(ref.Entity)
		if err != nil {
			return rep, err
		}
		m, err := surveyMember(fsys, ref.Path, e)
		if err != nil {
			return rep, err
		}
		rep.Members = append(rep.Members, m)
	}
	return rep, nil
}

func surveyMember(fsys fs.FS, name string, e *schema.Entity) (MemberReport, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return MemberReport{}, fmt.Errorf("inspect: open %s: %w", name, err)
	}
	defer f.Close()
	m, err := Member(f, e)
	m.Path = name
	return m, err
}

// SortedTags returns the tags of m in lexical order.
func SortedTags(m MemberReport) []string {
	tags := make([]string, 0, len(m.Tags))
	for t := range m.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func addExample(arr []string, val string) []string {
	for _, x := range arr {
		if x == val {
			return arr
		}
	}
	if len(arr) < maxExamples {
		return append(arr, val)
	}
	return arr
}
