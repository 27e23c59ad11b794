package xmlparser

import (
	"encoding/xml"
	"errors"
	"io"
	"iter"
	"strings"

	"romeetl/internal/errs"
	"romeetl/pkg/records"
)

// Stream lazily yields one record per top-level child of the document read
// from r. Each record maps the child's direct sub-element tags to their text;
// deeper elements are ignored and the first occurrence of a repeated tag wins.
//
// The sequence is single-pass. A syntax error is yielded once as an
// ErrMalformedInput error and ends the sequence.
func Stream(r io.Reader) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		dec := NewDecoder(r)
		var (
			depth int
			rec   records.Record
			field string
			text  strings.Builder
		)
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				if depth != 0 {
					yield(nil, errs.Malformedf("xml: unexpected end of document at depth %d", depth))
				}
				return
			}
			if err != nil {
				yield(nil, errs.Malformed("xml: stream", err))
				return
			}
			switch t := tok.(type) {
			case xml.StartElement:
				depth++
				switch depth {
				case 2:
					rec = records.Record{}
				case 3:
					field = t.Name.Local
					text.Reset()
				}
			case xml.CharData:
				if depth == 3 {
					text.Write(t)
				}
			case xml.EndElement:
				switch depth {
				case 3:
					if _, dup := rec[field]; !dup {
						rec[field] = text.String()
					}
				case 2:
					if !yield(rec, nil) {
						return
					}
					rec = nil
				}
				depth--
			}
		}
	}
}

// Values maps rec onto columns; missing keys become nil.
func Values(rec records.Record, columns []string) []any {
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = rec[col]
	}
	return row
}
