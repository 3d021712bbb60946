// Package schema walks a relational AST (internal/relational) into the set
// of SQL tables a contract's storage compiles to, and emits their DDL.
package schema

import (
	"fmt"

	"tzindexer/internal/michelson"
)

// Column is a single SQL column: its name and the Michelson primitive kind
// it was compiled from (which determines its SQL type, see typeToSQL).
type Column struct {
	Name       string
	ColumnType michelson.Kind
}

// ForeignKey is a (column, referenced table, referenced column) triple.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is one SQL table in the schema a contract compiles to: its
// columns in insertion order, its uniqueness index columns, and the two
// independent boolean knobs (unique, snapshots) that together determine
// its reserved columns and constraints.
type Table struct {
	Name    string
	Indices []string
	columns map[string]Column
	keys    []string // insertion order of columns, mirrors Rust's private `keys`
	fk      []ForeignKey
	seenFK  map[ForeignKey]bool

	unique    bool
	snapshots bool

	IDUnique bool
}

// NewTable returns a fresh table: unique and snapshotting by default,
// matching every bigmap-less, set-less table a contract's plain storage
// compiles to.
func NewTable(name string) *Table {
	return &Table{
		Name:      name,
		columns:   make(map[string]Column),
		seenFK:    make(map[ForeignKey]bool),
		unique:    true,
		snapshots: true,
		IDUnique:  true,
	}
}

// HasUniqueness reports whether (indices…, tx_context_id) is a uniqueness
// constraint on this table.
func (t *Table) HasUniqueness() bool { return t.unique }

// NoUniqueness drops the uniqueness constraint — called when a List's
// elements are not a Set (elems_unique=false).
func (t *Table) NoUniqueness() { t.unique = false }

// TracksChanges marks the table as a change-tracking (non-snapshot) table:
// a BigMap-backed table, which gains `deleted`/`bigmap_id` reserved columns.
func (t *Table) TracksChanges() { t.snapshots = false }

// ContainsSnapshots reports whether each row represents a point-in-time
// snapshot (true) or a change-tracking entry (false).
func (t *Table) ContainsSnapshots() bool { return t.snapshots }

// AddForeignKey registers a foreign key; duplicates are no-ops.
func (t *Table) AddForeignKey(column, refTable, refColumn string) {
	fk := ForeignKey{Column: column, RefTable: refTable, RefColumn: refColumn}
	if t.seenFK[fk] {
		return
	}
	t.seenFK[fk] = true
	t.fk = append(t.fk, fk)
}

// ForeignKeys returns the table's foreign keys in registration order.
func (t *Table) ForeignKeys() []ForeignKey { return t.fk }

// AddColumn adds a plain column, idempotently (first write wins). An
// OrEnumeration discriminator column type maps to Unit, since what
// ultimately gets written there is always a string tag or NULL.
func (t *Table) AddColumn(name string, kind michelson.Kind) error {
	if _, ok := t.columns[name]; ok {
		return nil
	}
	sqlKind := kind
	if !kind.IsSimple() {
		if kind != michelson.KOr {
			return fmt.Errorf("schema: add_column called with non-simple, non-or type %s", kind)
		}
		sqlKind = michelson.KUnit
	}
	t.keys = append(t.keys, name)
	t.columns[name] = Column{Name: name, ColumnType: sqlKind}
	return nil
}

// AddIndex adds a column that also participates in the table's uniqueness
// index, idempotently.
func (t *Table) AddIndex(name string, kind michelson.Kind) error {
	if _, ok := t.columns[name]; ok {
		return nil
	}
	if !kind.IsSimple() {
		return fmt.Errorf("schema: add_index called with non-simple type %s", kind)
	}
	t.Indices = append(t.Indices, name)
	t.keys = append(t.keys, name)
	t.columns[name] = Column{Name: name, ColumnType: kind}
	return nil
}

// Columns returns the table's columns in insertion order.
func (t *Table) Columns() []Column {
	res := make([]Column, 0, len(t.keys))
	for _, k := range t.keys {
		res = append(res, t.columns[k])
	}
	return res
}

// HasColumn reports whether name is already a column of this table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// DropColumn removes a column (and, if present, its index membership).
func (t *Table) DropColumn(name string) {
	if _, ok := t.columns[name]; !ok {
		return
	}
	delete(t.columns, name)
	t.keys = removeString(t.keys, name)
	t.DropIndex(name)
}

// DropIndex removes name from the index-column list without touching the
// column itself.
func (t *Table) DropIndex(name string) {
	t.Indices = removeString(t.Indices, name)
}

func removeString(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// ReservedColumns returns the columns present on every table regardless of
// its compiled content: id and tx_context_id always; deleted and
// bigmap_id additionally when the table is a change-tracking table.
func (t *Table) ReservedColumns() []string {
	res := []string{"id", "tx_context_id"}
	if !t.ContainsSnapshots() {
		res = append(res, "deleted", "bigmap_id")
	}
	return res
}

// ParentName returns the qualified name of t's parent table (its name with
// the last dotted segment stripped), and false if t is the root table.
func ParentName(qualifiedName string) (string, bool) {
	for i := len(qualifiedName) - 1; i >= 0; i-- {
		if qualifiedName[i] == '.' {
			return qualifiedName[:i], true
		}
	}
	return "", false
}
