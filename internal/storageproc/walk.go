package storageproc

import (
	"fmt"
	"math/big"
	"strings"

	"tzindexer/internal/chain"
	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
)

// unfoldValue reshapes v for the RA node about to consume it. A bare
// Map/BigMap/List value arrives as a Michelson `list` (of `Elt`s, for the
// two map kinds) and must be iterated element-by-element, not right-comb
// folded into nested Pairs the way an actual n-ary Pair/Option position
// would be. Everything else gets the ordinary fold.
//
// que-pasa's newer storage_update/processor.rs calls dedicated
// `unpair_elts`/`unpair_list` helpers for the Map/BigMap/List cases that
// aren't present in this corpus's retrieved sources; this mirrors their
// documented intent (don't pair-fold a collection's own element list)
// using only the fold primitive this package already has.
func unfoldValue(v *michelson.V, ra *relational.RA) *michelson.V {
	switch ra.Kind {
	case relational.RAList, relational.RAMap, relational.RABigMap:
		return v
	default:
		return v.UnfoldList()
	}
}

// orBranchTag returns the literal string written into an OrEnumeration's
// discriminator column for the branch ra compiled to: a Unit branch's own
// annotation, or the last segment of the child table a payload branch
// opened.
func orBranchTag(ra *relational.RA) string {
	if ra.Kind == relational.RALeaf && ra.Entry.Value != "" {
		return ra.Entry.Value
	}
	if table, ok := ra.TableEntry(); ok {
		if i := strings.LastIndex(table, "."); i >= 0 {
			return table[i+1:]
		}
		return table
	}
	if ra.Kind == relational.RALeaf {
		return ra.Entry.ColumnName
	}
	return ""
}

// resolveOr is the defensive fallback for an OrEnumeration node reached
// by a value that isn't wrapped in an explicit Left/Right (malformed or
// unusual encodings — real Micheline always wraps an or's value, so this
// only guards against input that doesn't). It walks toward whichever
// branch looks terminal and returns its tag, or "" if neither branch
// resolves to one.
func resolveOr(ra *relational.RA, v *michelson.V) string {
	switch ra.Kind {
	case relational.RAOrEnumeration:
		if tag := resolveOr(ra.LeftAST, v); tag != "" {
			return tag
		}
		return resolveOr(ra.RightAST, v)
	case relational.RALeaf:
		return orBranchTag(ra)
	default:
		return ""
	}
}

// processRootValue starts a fresh co-walk of v against ra under rootTable
// — the entry point for both a contract's storage and an entrypoint's
// parameters (spec.md §4.6 step 2). Unlike the legacy
// storage_value/processor.rs, it never writes a `deleted` column at the
// root: deleted is reserved for bigmap-derived (snapshot=false) tables,
// per DESIGN.md's Open Question (a).
func (p *Processor) processRootValue(v *michelson.V, ra *relational.RA, tx chain.TxContext, rootTable string) error {
	ctx := rootContext(rootTable, p.idgen.Next())
	return p.processValue(ctx, v, ra, tx)
}

// processValue is the co-walk: a switch on (ra.Kind, v) emitting Inserts
// and recursing per spec.md §4.6's pattern table.
func (p *Processor) processValue(ctx procContext, v *michelson.V, ra *relational.RA, tx chain.TxContext) error {
	if ra == nil || v == nil {
		return fmt.Errorf("storageproc: nil value or relational node mid-walk")
	}

	if ra.Kind == relational.RALeaf && ra.Entry.ColumnType.Kind == michelson.KStop {
		return nil
	}

	if ra.Kind == relational.RAOption {
		if v.Kind == michelson.VNone {
			p.sqlTouchInsert(ctx.LastTable, ctx, tx)
			return nil
		}
		return p.processValue(ctx, v, ra.ElemAST, tx)
	}

	v = unfoldValue(v, ra)

	switch ra.Kind {
	case relational.RALeaf:
		val, err := storageToSQLValue(ra.Entry, v)
		if err != nil {
			return err
		}
		p.sqlAddCell(ctx, ra.Entry.TableName, ra.Entry.ColumnName, val, tx)
		return nil

	case relational.RAOrEnumeration:
		return p.processOr(ctx, v, ra, tx)

	case relational.RAPair:
		if v.Kind != michelson.VPair {
			return fmt.Errorf("storageproc: pair position got unexpected value kind %v", v.Kind)
		}
		if err := p.processValue(ctx, v.Right, ra.Right, tx); err != nil {
			return err
		}
		return p.processValue(ctx, v.Left, ra.Left, tx)

	case relational.RABigMap:
		if v.Kind == michelson.VInt {
			p.bindBigmap(int32(v.Int.Int64()), ctx.ID, ra, tx)
			return nil
		}
		return p.processCollection(ctx, v, ra, tx)

	case relational.RAMap:
		return p.processCollection(ctx, v, ra, tx)

	case relational.RAList:
		return p.processList(ctx, v, ra, tx)

	default:
		return fmt.Errorf("storageproc: unhandled relational AST kind %d", ra.Kind)
	}
}

func (p *Processor) processOr(ctx procContext, v *michelson.V, ra *relational.RA, tx chain.TxContext) error {
	var branchAST *relational.RA
	var branchTable string
	var branchVal *michelson.V

	switch v.Kind {
	case michelson.VLeft:
		branchAST, branchTable, branchVal = ra.LeftAST, ra.LeftTable, v.Left
	case michelson.VRight:
		branchAST, branchTable, branchVal = ra.RightAST, ra.RightTable, v.Right
	default:
		tag := resolveOr(ra, v)
		if tag == "" {
			tag = ra.OrUnfold.ColumnName
		}
		p.sqlAddCell(ctx, ra.OrUnfold.TableName, ra.OrUnfold.ColumnName, chain.StringValue(tag), tx)
		return nil
	}

	p.sqlAddCell(ctx, ra.OrUnfold.TableName, ra.OrUnfold.ColumnName, chain.StringValue(orBranchTag(branchAST)), tx)

	next := ctx
	if branchTable != ctx.LastTable {
		next = p.updateContext(ctx, branchTable, tx)
	}
	return p.processValue(next, branchVal, branchAST, tx)
}

// processCollection handles Map and BigMap: each Elt becomes its own row
// in the child table, sharing the opening row's id as its foreign key.
func (p *Processor) processCollection(ctx procContext, v *michelson.V, ra *relational.RA, tx chain.TxContext) error {
	table := ra.Table
	parentID := ctx.ID
	if table != ctx.LastTable {
		p.sqlTouchInsert(ctx.LastTable, ctx, tx)
	}

	var elems []*michelson.V
	switch v.Kind {
	case michelson.VElt:
		elems = []*michelson.V{v}
	case michelson.VList:
		elems = v.Elems
	default:
		return fmt.Errorf("storageproc: expected Elt or list of Elt for %s, got %v", table, v.Kind)
	}

	if len(elems) == 0 {
		row := procContext{LastTable: table, ID: p.idgen.Next(), FKID: &parentID}
		p.sqlTouchInsert(table, row, tx)
		return nil
	}

	for _, elt := range elems {
		row := procContext{LastTable: table, ID: p.idgen.Next(), FKID: &parentID}
		if elt.Kind != michelson.VElt {
			return fmt.Errorf("storageproc: expected Elt in %s, got %v", table, elt.Kind)
		}
		if err := p.processValue(row, elt.Left, ra.KeyAST, tx); err != nil {
			return err
		}
		if err := p.processValue(row, elt.Right, ra.ValueAST, tx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processList(ctx procContext, v *michelson.V, ra *relational.RA, tx chain.TxContext) error {
	table := ra.Table
	parentID := ctx.ID
	if table != ctx.LastTable {
		p.sqlTouchInsert(ctx.LastTable, ctx, tx)
	}

	elems := v.Elems
	if v.Kind != michelson.VList {
		elems = []*michelson.V{v}
	}

	if len(elems) == 0 {
		row := procContext{LastTable: table, ID: p.idgen.Next(), FKID: &parentID}
		p.sqlTouchInsert(table, row, tx)
		return nil
	}

	for _, elem := range elems {
		row := procContext{LastTable: table, ID: p.idgen.Next(), FKID: &parentID}
		if err := p.processValue(row, elem, ra.ValueAST, tx); err != nil {
			return err
		}
	}
	return nil
}

// updateContext enters a new table: it first ensures the table ctx is
// leaving has at least a bare row (sql_touch_insert), then returns a
// fresh context with fk_id pointing at the row being left.
func (p *Processor) updateContext(ctx procContext, table string, tx chain.TxContext) procContext {
	if table != ctx.LastTable {
		p.sqlTouchInsert(ctx.LastTable, ctx, tx)
	}
	fk := ctx.ID
	return procContext{LastTable: table, ID: p.idgen.Next(), FKID: &fk}
}

// sqlTouchInsert ensures a row exists for (table, ctx.ID), creating it
// with just its foreign key and tx_context_id if absent, and returns it
// so callers can layer more columns on.
func (p *Processor) sqlTouchInsert(table string, ctx procContext, tx chain.TxContext) *chain.Insert {
	key := insertKey{Table: table, ID: ctx.ID}
	ins, ok := p.inserts[key]
	if ok {
		return ins
	}
	ins = &chain.Insert{
		Table:   table,
		ID:      ctx.ID,
		Columns: map[string]chain.Value{"tx_context_id": chain.IntValue(big.NewInt(tx.ID))},
	}
	if ctx.FKID != nil {
		fk := *ctx.FKID
		ins.FKID = &fk
	}
	p.inserts[key] = ins
	return ins
}

// sqlAddCell appends column=val to the row at (table, ctx.ID), creating
// the row first if this is its first cell.
func (p *Processor) sqlAddCell(ctx procContext, table, column string, val chain.Value, tx chain.TxContext) {
	ins := p.sqlTouchInsert(table, ctx, tx)
	ins.Columns[column] = val
}
