// Package relational compiles a contract's structural type tree (T, from
// internal/michelson) into a relational AST (RA): the same tree shape,
// annotated with which SQL table and column each subterm lives in.
package relational

import (
	"fmt"

	"tzindexer/internal/michelson"
)

// Indexes is the single shared name-space every anonymous table/column
// name is drawn from — all fresh names come from one monotonic counter,
// not one per table, so every generated name is unique across all the
// trees compiled with the same Indexes.
type Indexes map[string]uint32

// NewIndexes returns an empty counter map.
func NewIndexes() Indexes { return make(Indexes) }

const indexCounterKey = "foo" // all tables share one number space

func (idx Indexes) next() uint32 {
	x := idx[indexCounterKey]
	idx[indexCounterKey] = x + 1
	return x
}

func tableName(idx Indexes, name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("table%d", idx.next())
}

// columnStem returns the default column-name stem for a SimpleExprTy leaf
// when it carries no field annotation. KeyHash intentionally maps to
// "string", matching the inherited default rather than "key_hash" — it has
// never been revisited against real contract data.
func columnStem(k michelson.Kind) string {
	switch k {
	case michelson.KAddress:
		return "address"
	case michelson.KBool:
		return "bool"
	case michelson.KBytes:
		return "bytes"
	case michelson.KInt, michelson.KMutez:
		return "int"
	case michelson.KNat:
		return "nat"
	case michelson.KString:
		return "string"
	case michelson.KKeyHash:
		return "string"
	case michelson.KTimestamp:
		return "timestamp"
	case michelson.KUnit:
		return "unit"
	case michelson.KStop:
		return "stop"
	default:
		return ""
	}
}

// Context tracks which table new columns land in, and an optional prefix
// (set by an enclosing Pair's annotation) that gets prepended to
// auto-generated column names so nested fields stay distinguishable.
type Context struct {
	TableName string
	prefix    string
}

// NewContext returns the root context: everything hangs off the "storage"
// table until a Map/BigMap/List opens a child table.
func NewContext() Context {
	return Context{TableName: "storage"}
}

// name computes the column name for t under c: t's own annotation if
// present, otherwise a stem+counter name, then prefixed by c.prefix.
// withIndexName adds the idx_ prefix build_index leaves use on top of it.
func (c Context) name(t *michelson.T, idx Indexes) string {
	name := t.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", columnStem(t.Kind), idx.next())
	}
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}
	return name
}

func (c Context) withIndexName(t *michelson.T, idx Indexes) string {
	return "idx_" + c.name(t, idx)
}

func (c Context) next() Context { return c }

func (c Context) nextWithPrefix(prefix string) Context {
	n := c.next()
	if prefix != "" {
		n.prefix = prefix
	}
	return n
}

func (c Context) startTable(name string) Context {
	n := c.next()
	n.TableName = c.TableName + "." + name
	return n
}

// Kind discriminates RA's variants.
type Kind int

const (
	RAPair Kind = iota
	RAOrEnumeration
	RAMap
	RABigMap
	RAList
	RALeaf
	RAOption
)

// Entry is the leaf payload: which table/column a value lands in, its
// Michelson type, whether it's part of a uniqueness index, and — for an
// OrEnumeration Unit branch — the literal tag string written into the
// discriminator column.
type Entry struct {
	TableName  string
	ColumnName string
	ColumnType *michelson.T
	Value      string // non-empty only for a literal Or-branch tag
	IsIndex    bool
}

// RA is a node of the relational AST. Which fields are meaningful depends
// on Kind; see the field comments.
type RA struct {
	Kind Kind

	// RAPair
	Left  *RA
	Right *RA

	// RAOrEnumeration
	OrUnfold   *Entry
	LeftTable  string
	LeftAST    *RA
	RightTable string
	RightAST   *RA

	// RAMap, RABigMap, RAList
	Table       string
	KeyAST      *RA // nil for RAList
	ValueAST    *RA // element type for RAList
	ElemsUnique bool // RAList only: true if this table originated from a `set`

	// RALeaf
	Entry *Entry

	// RAOption
	ElemAST *RA
}

// TableEntry returns the table a Map/BigMap/List node opens, and whether
// this node opens one at all.
func (r *RA) TableEntry() (string, bool) {
	switch r.Kind {
	case RAMap, RABigMap, RAList:
		return r.Table, true
	case RAOption:
		return r.ElemAST.TableEntry()
	default:
		return "", false
	}
}

// Build compiles t into an RA under ctx, using idx for fresh-name
// allocation. It is the sole entry point other packages call; internal
// helpers build the Or-enumeration and index sub-trees.
func Build(ctx Context, t *michelson.T, idx Indexes) (*RA, error) {
	if t == nil {
		return nil, fmt.Errorf("relational: nil type node")
	}

	switch t.Kind {
	case michelson.KPair:
		inner := ctx.nextWithPrefix(t.Name)
		left, err := Build(inner, t.Left, idx)
		if err != nil {
			return nil, err
		}
		right, err := Build(inner, t.Right, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RAPair, Left: left, Right: right}, nil

	case michelson.KList:
		tctx := ctx.startTable(tableName(idx, t.Name))
		elems, err := Build(tctx, t.Left, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RAList, Table: tctx.TableName, ValueAST: elems, ElemsUnique: t.Unique}, nil

	case michelson.KBigMap:
		tctx := ctx.startTable(tableName(idx, t.Name))
		key, err := buildIndex(tctx, t.Left, idx)
		if err != nil {
			return nil, err
		}
		val, err := Build(tctx, t.Right, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RABigMap, Table: tctx.TableName, KeyAST: key, ValueAST: val}, nil

	case michelson.KMap:
		tctx := ctx.startTable(tableName(idx, t.Name))
		key, err := buildIndex(tctx, t.Left, idx)
		if err != nil {
			return nil, err
		}
		val, err := Build(tctx, t.Right, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RAMap, Table: tctx.TableName, KeyAST: key, ValueAST: val}, nil

	case michelson.KOption:
		// The inner type inherits this node's annotation if it had none
		// of its own, but — unlike a bare Pair — Option is not
		// transparent: it wraps the built inner AST in its own node so
		// the storage processor can tell "this position is nullable" from
		// "this position is some other shape". See DESIGN.md's Open
		// Question (e): the RelationalAST compiler this is grounded on
		// collapses Option at this call site with no wrapping variant at
		// all, but that file's own storage processor has no use for
		// knowing about Option and never needs to — the newer processor
		// this package otherwise follows pattern-matches a real
		// RelationalAST::Option variant, so its (uncaptured) relational.rs
		// counterpart must construct one here instead of collapsing.
		inner := t.Left
		if inner.Name == "" && t.Name != "" {
			cp := *inner
			cp.Name = t.Name
			inner = &cp
		}
		elem, err := Build(ctx, inner, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RAOption, ElemAST: elem}, nil

	case michelson.KOr:
		name := t.Name
		if name == "" {
			name = "noname"
		}
		ra, _, err := buildEnumerationOr(ctx, t, name, idx)
		return ra, err

	default:
		if !t.Kind.IsSimple() {
			return nil, fmt.Errorf("relational: unhandled type kind %s", t.Kind)
		}
		return &RA{
			Kind: RALeaf,
			Entry: &Entry{
				TableName:  ctx.TableName,
				ColumnName: ctx.name(t, idx),
				ColumnType: t,
			},
		}, nil
	}
}

// buildEnumerationOr implements the Or-as-enumeration compilation:
// recursing down both branches of a (possibly nested) `or` chain, with the
// discriminator entry (`or_unfold`) attached only to the topmost node —
// see DESIGN.md's Open Question (b) decision.
func buildEnumerationOr(ctx Context, t *michelson.T, columnName string, idx Indexes) (*RA, string, error) {
	if t.Kind == michelson.KOr {
		leftAST, leftTable, err := buildEnumerationOr(ctx, t.Left, columnName, idx)
		if err != nil {
			return nil, "", err
		}
		rightAST, rightTable, err := buildEnumerationOr(ctx, t.Right, columnName, idx)
		if err != nil {
			return nil, "", err
		}
		entry := &Entry{
			TableName:  ctx.TableName,
			ColumnName: columnName,
			ColumnType: t,
		}
		return &RA{
			Kind:       RAOrEnumeration,
			OrUnfold:   entry,
			LeftTable:  leftTable,
			LeftAST:    leftAST,
			RightTable: rightTable,
			RightAST:   rightAST,
		}, ctx.TableName, nil
	}

	if t.Kind == michelson.KUnit {
		return &RA{
			Kind: RALeaf,
			Entry: &Entry{
				TableName:  ctx.TableName,
				ColumnName: columnName,
				ColumnType: t,
				Value:      t.Name,
			},
		}, ctx.TableName, nil
	}

	// Any other branch carries a payload: it must open its own child
	// table, named by the branch's own annotation. A missing annotation
	// here is a hard schema-build error, not a silently anonymous table.
	if t.Name == "" {
		return nil, "", fmt.Errorf("relational: or branch %s carries a payload but has no field annotation to name its table", t.Kind)
	}
	tctx := ctx.startTable(t.Name)
	ra, err := Build(tctx, t, idx)
	if err != nil {
		return nil, "", err
	}
	return ra, tctx.TableName, nil
}

// buildIndex compiles the key side of a Map/BigMap (or a Set's element
// type): every leaf is marked IsIndex and named with the idx_ convention.
// Only Pair-of-primitives or a bare primitive are accepted; anything else
// is a schema-build error (spec.md §4.2).
func buildIndex(ctx Context, t *michelson.T, idx Indexes) (*RA, error) {
	if t == nil {
		return nil, fmt.Errorf("relational: nil index type node")
	}
	switch t.Kind {
	case michelson.KPair:
		inner := ctx.nextWithPrefix(t.Name)
		left, err := buildIndex(inner.next(), t.Left, idx)
		if err != nil {
			return nil, err
		}
		right, err := buildIndex(inner, t.Right, idx)
		if err != nil {
			return nil, err
		}
		return &RA{Kind: RAPair, Left: left, Right: right}, nil
	default:
		if !t.Kind.IsSimple() {
			return nil, fmt.Errorf("relational: big-map/map/set key type must be a primitive or pair of primitives, got %s", t.Kind)
		}
		return &RA{
			Kind: RALeaf,
			Entry: &Entry{
				TableName:  ctx.TableName,
				ColumnName: ctx.withIndexName(t, idx),
				ColumnType: t,
				IsIndex:    true,
			},
		}, nil
	}
}
