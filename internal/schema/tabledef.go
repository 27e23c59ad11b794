package schema

import "romeetl/internal/ddl"

// TableDef converts e into the generic DDL model. mapType translates the
// logical scalar type into the dialect's SQL type. Foreign keys are deferred
// so that rows of one load stage may be inserted in any order.
func TableDef(e *Entity, mapType func(string) string) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, len(e.Fields))
	for _, f := range e.Fields {
		typ := f.Type
		if f.Integer() {
			typ = TypeInt
		}
		c := ddl.ColumnDef{
			Name:       f.Name,
			SQLType:    mapType(typ),
			Nullable:   !f.Required && !f.Kind.IsPrimary(),
			PrimaryKey: f.Kind.IsPrimary(),
		}
		if f.Kind.IsForeign() {
			c.References = &ddl.ForeignKey{Table: f.Ref.Table, Column: f.Ref.Column, Deferred: true}
		}
		cols = append(cols, c)
	}
	return ddl.TableDef{FQN: e.Name, Columns: cols}
}
