// Package schema is the typed descriptor of the ROME relational model. For
// every entity kind it lists the ordered fields with their semantic kind
// (plain value, primary key, foreign key, or both), the logical scalar type
// and, when the upstream XML uses a different tag, the source tag to read.
//
// Consumers use the descriptor to render table definitions, to decide which
// fields are coerced to integers, and to map XML records onto columns.
package schema

import (
	"fmt"
	"strings"
)

// FieldKind is the semantic role of a field.
type FieldKind int

const (
	// Plain is a value column of the declared scalar type.
	Plain FieldKind = iota
	// PrimaryKey is (part of) the primary key.
	PrimaryKey
	// ForeignKey references another table.
	ForeignKey
	// PrimaryForeignKey is a primary key that also references another table.
	PrimaryForeignKey
)

func (k FieldKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case PrimaryKey:
		return "pk"
	case ForeignKey:
		return "fk"
	case PrimaryForeignKey:
		return "pfk"
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// IsPrimary reports whether the field belongs to the primary key.
func (k FieldKind) IsPrimary() bool { return k == PrimaryKey || k == PrimaryForeignKey }

// IsForeign reports whether the field references another table.
func (k FieldKind) IsForeign() bool { return k == ForeignKey || k == PrimaryForeignKey }

// Logical scalar types, in the vocabulary of the dialect MapType helpers.
const (
	TypeInt  = "int"
	TypeText = "text"
)

// Ref names the column a foreign key points at.
type Ref struct {
	Table  string
	Column string
}

// Field describes one column.
type Field struct {
	Name string
	Kind FieldKind
	// Type is the logical scalar type; key fields are always integers.
	Type string
	// Source is the XML tag to read when it differs from Name.
	Source string
	// Ref is set for foreign keys.
	Ref Ref
	// Required fields are rendered NOT NULL.
	Required bool
}

// SourceKey returns the raw record key the field is read from.
func (f Field) SourceKey() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// Integer reports whether values of the field are coerced to int64. Primary
// and foreign keys always are, regardless of the declared scalar type.
func (f Field) Integer() bool {
	return f.Kind != Plain || strings.EqualFold(f.Type, TypeInt)
}

// Entity is one table of the model.
type Entity struct {
	Name   string
	Fields []Field
	// Ogr is set for the kinds that own a code in the shared Ogr space.
	Ogr *OgrType
}

// Columns returns the field names in declaration order.
func (e *Entity) Columns() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Name
	}
	return out
}

// Field returns the named field.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKey returns the primary key column names.
func (e *Entity) PrimaryKey() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Kind.IsPrimary() {
			out = append(out, f.Name)
		}
	}
	return out
}

// OgrField is the name of the column holding the entity's own Ogr code.
const OgrField = "ogr"

func (e *Entity) String() string { return e.Name }
