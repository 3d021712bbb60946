package schema

import (
	"fmt"
	"sort"

	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
)

// Schema is the full set of tables a contract's storage type (plus, when
// present, its entrypoint parameter types) compiles to, keyed by their
// qualified dotted name.
type Schema struct {
	Tables map[string]*Table
}

// reservedBigmapClearsTable is the one table the schema compiler always
// emits in addition to whatever the RA yields: a change-tracking table
// with a bigmap_id column. Nothing in this module writes rows to it; the
// processor records Clear ops as "clear" actions in the shared
// bigmap_meta_actions table instead. It is never fronted by a _live view.
const reservedBigmapClearsTable = "bigmap_clears"

// Compile walks one or more relational ASTs (the contract's storage AST,
// plus one per entrypoint parameter AST that opens its own root table)
// into a Schema. Each root is given its own starting table name (conventionally
// "storage" for the contract's storage, "entry.<name>" per spec.md §4.6 for
// parameter trees).
func Compile(roots map[string]*relational.RA) (*Schema, error) {
	s := &Schema{Tables: make(map[string]*Table)}
	for _, ra := range roots {
		if err := s.populate(ra); err != nil {
			return nil, err
		}
	}
	s.linkForeignKeys()
	s.addReservedTables()
	return s, nil
}

func (s *Schema) getOrCreate(name string) *Table {
	t, ok := s.Tables[name]
	if !ok {
		t = NewTable(name)
		s.Tables[name] = t
	}
	return t
}

func (s *Schema) populate(ra *relational.RA) error {
	if ra == nil {
		return nil
	}
	switch ra.Kind {
	case relational.RAPair:
		if err := s.populate(ra.Left); err != nil {
			return err
		}
		return s.populate(ra.Right)

	case relational.RAMap:
		if err := s.populate(ra.KeyAST); err != nil {
			return err
		}
		return s.populate(ra.ValueAST)

	case relational.RABigMap:
		if err := s.populate(ra.KeyAST); err != nil {
			return err
		}
		if err := s.populate(ra.ValueAST); err != nil {
			return err
		}
		s.getOrCreate(ra.Table).TracksChanges()
		return nil

	case relational.RAList:
		if err := s.populate(ra.ValueAST); err != nil {
			return err
		}
		if !ra.ElemsUnique {
			s.getOrCreate(ra.Table).NoUniqueness()
		}
		return nil

	case relational.RAOrEnumeration:
		if err := s.addColumnFromEntry(ra.OrUnfold); err != nil {
			return err
		}
		if err := s.populate(ra.LeftAST); err != nil {
			return err
		}
		return s.populate(ra.RightAST)

	case relational.RALeaf:
		return s.addColumnFromEntry(ra.Entry)

	case relational.RAOption:
		return s.populate(ra.ElemAST)

	default:
		return fmt.Errorf("schema: unhandled RA kind %d", ra.Kind)
	}
}

func (s *Schema) addColumnFromEntry(e *relational.Entry) error {
	if e == nil {
		return fmt.Errorf("schema: nil relational entry")
	}
	t := s.getOrCreate(e.TableName)
	if e.IsIndex {
		return t.AddIndex(e.ColumnName, e.ColumnType.Kind)
	}
	return t.AddColumn(e.ColumnName, e.ColumnType.Kind)
}

// linkForeignKeys adds, to every non-root table, an implicit foreign key
// to its parent's id column — derived purely from the dotted table name,
// per spec.md §3's Table invariant.
func (s *Schema) linkForeignKeys() {
	for name, t := range s.Tables {
		parent, ok := ParentName(name)
		if !ok {
			continue
		}
		t.AddForeignKey(parent+"_id", parent, "id")
	}
}

func (s *Schema) addReservedTables() {
	clears := NewTable(reservedBigmapClearsTable)
	clears.TracksChanges()
	_ = clears.AddColumn("bigmap_id", michelson.KInt)
	s.Tables[reservedBigmapClearsTable] = clears
}

// SortedNames returns table names in a deterministic order (root "storage"
// first, then lexicographic), so DDL emission and tests are reproducible.
func (s *Schema) SortedNames() []string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "storage" {
			return true
		}
		if names[j] == "storage" {
			return false
		}
		return names[i] < names[j]
	})
	return names
}
