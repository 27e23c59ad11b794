// Package xmlparser turns ROME referential XML files into flat records.
//
// Every referential file has the same shape: a root element whose direct
// children are the records, and whose grandchildren are the record fields.
// Stream walks such a document lazily; Parse builds a Node tree for files
// that are read once and whose sub-sections are extracted independently
// (cards and their blocs).
//
// Files are published in a legacy single-byte charset (ISO-8859-15). The
// decoder returned by NewDecoder converts any charset declared in the XML
// prolog to UTF-8 with golang.org/x/text.
package xmlparser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// NewDecoder returns an xml.Decoder able to read documents declared in a
// legacy charset such as ISO-8859-15 or windows-1252.
func NewDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	return dec
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(label))
	enc, err := htmlindex.Get(name)
	if err != nil {
		// htmlindex folds a few labels (latin1 -> windows-1252); fall back to
		// the IANA registry for anything it does not know.
		enc, err = ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("xml: unsupported charset %q", label)
		}
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
