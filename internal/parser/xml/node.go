package xmlparser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"

	"romeetl/internal/errs"
	"romeetl/pkg/records"
)

// Node is one element of a parsed document. Text holds the character data
// found directly inside the element.
type Node struct {
	Tag      string
	Text     string
	Children []*Node
}

// Parse reads a whole document and returns its root element.
func Parse(r io.Reader) (*Node, error) {
	dec := NewDecoder(r)
	var (
		root  *Node
		stack []*Node
		text  []*bytes.Buffer
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Malformed("xml: parse", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Tag: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, &bytes.Buffer{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = text[len(text)-1].String()
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}
	if root == nil {
		return nil, errs.Malformedf("xml: document has no root element")
	}
	return root, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(b []byte) (*Node, error) {
	return Parse(bytes.NewReader(b))
}

// Find returns the first direct child with the given tag, or nil.
func (n *Node) Find(tag string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildText returns the text of the first direct child with the given tag.
func (n *Node) ChildText(tag string) (string, bool) {
	c := n.Find(tag)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// RequireText is ChildText failing with ErrMalformedInput when the child is
// missing.
func (n *Node) RequireText(tag string) (string, error) {
	s, ok := n.ChildText(tag)
	if !ok {
		return "", errs.Malformedf("xml: <%s> has no <%s> child", n.Tag, tag)
	}
	return s, nil
}

// Records yields one record per direct child of n, mapping each grandchild
// tag to its text. A nil node yields nothing.
func (n *Node) Records() iter.Seq[records.Record] {
	return func(yield func(records.Record) bool) {
		if n == nil {
			return
		}
		for _, item := range n.Children {
			if !yield(flatten(item)) {
				return
			}
		}
	}
}

// Seq adapts Records to the error-carrying sequence consumed by the
// transformer and the loader.
func (n *Node) Seq() iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for rec := range n.Records() {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Record flattens n itself: each direct child tag maps to its text.
func (n *Node) Record() records.Record {
	if n == nil {
		return records.Record{}
	}
	return flatten(n)
}

func flatten(item *Node) records.Record {
	rec := make(records.Record, len(item.Children))
	for _, f := range item.Children {
		if _, dup := rec[f.Tag]; dup {
			continue
		}
		rec[f.Tag] = f.Text
	}
	return rec
}

func (n *Node) String() string {
	return fmt.Sprintf("<%s> (%d children)", n.Tag, len(n.Children))
}
