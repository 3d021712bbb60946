package storageproc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/bigmap"
	"tzindexer/internal/chain"
	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
)

func testTx() chain.TxContext {
	return chain.TxContext{Level: 100, Contract: "KT1test", OperationHash: "opH", ID: 1}
}

func findInsert(t *testing.T, p *Processor, table string, id int64) *chain.Insert {
	t.Helper()
	ins, ok := p.inserts[insertKey{Table: table, ID: id}]
	require.True(t, ok, "no insert found for %s/%d", table, id)
	return ins
}

// A plain string at the root writes a single storage row with one column.
func TestProcessRootValue_PrimitiveStringAtRoot(t *testing.T) {
	ra, err := relational.Build(relational.NewContext(), &michelson.T{Kind: michelson.KString, Name: "owner"}, relational.NewIndexes())
	require.NoError(t, err)

	p := NewProcessor(nil, nil)
	tx := testTx()
	v := &michelson.V{Kind: michelson.VString, Str: "tz1abc"}

	require.NoError(t, p.processRootValue(v, ra, tx, "storage"))

	row := findInsert(t, p, "storage", 1)
	require.Nil(t, row.FKID)
	require.Equal(t, "tz1abc", row.Columns["owner"].Str)
}

// Option(None) only touch-inserts the row: no column for the option's
// payload gets written, but the row itself still exists.
func TestProcessRootValue_OptionNone(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOption, Name: "maybe_admin",
		Left: &michelson.T{Kind: michelson.KAddress},
	}
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)
	require.Equal(t, relational.RAOption, ra.Kind)

	p := NewProcessor(nil, nil)
	tx := testTx()
	v := &michelson.V{Kind: michelson.VNone}

	require.NoError(t, p.processRootValue(v, ra, tx, "storage"))

	row := findInsert(t, p, "storage", 1)
	require.Len(t, row.Columns, 1)
	_, hasTxCol := row.Columns["tx_context_id"]
	require.True(t, hasTxCol)
}

// A set of ints opens a child table with one row per element, each
// foreign-keyed to the row that opened it.
func TestProcessRootValue_SetOfInts(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Unique: true, Name: "tags",
		Left: &michelson.T{Kind: michelson.KInt, Name: "idx_tag"},
	}
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)
	require.Equal(t, relational.RAList, ra.Kind)

	p := NewProcessor(nil, nil)
	tx := testTx()
	v := &michelson.V{Kind: michelson.VList, Elems: []*michelson.V{
		{Kind: michelson.VInt, Int: bigInt(1)},
		{Kind: michelson.VInt, Int: bigInt(2)},
	}}

	require.NoError(t, p.processRootValue(v, ra, tx, "storage"))

	parent := findInsert(t, p, "storage", 1)
	require.Nil(t, parent.FKID)

	row1 := findInsert(t, p, ra.Table, 2)
	require.NotNil(t, row1.FKID)
	require.Equal(t, int64(1), *row1.FKID)
	require.Equal(t, int64(1), row1.Columns["idx_tag"].Int.Int64())

	row2 := findInsert(t, p, ra.Table, 3)
	require.Equal(t, int64(2), row2.Columns["idx_tag"].Int.Int64())
}

// An empty list still emits its parent row, plus one bare child row with
// no key/value columns.
func TestProcessRootValue_EmptyListEmitsBareRow(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Name: "items",
		Left: &michelson.T{Kind: michelson.KInt, Name: "n"},
	}
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)

	p := NewProcessor(nil, nil)
	tx := testTx()
	v := &michelson.V{Kind: michelson.VList, Elems: nil}

	require.NoError(t, p.processRootValue(v, ra, tx, "storage"))

	row := findInsert(t, p, ra.Table, 2)
	require.Len(t, row.Columns, 1) // tx_context_id only
}

// A big-map bound at the root, then updated with two distinct keys,
// produces a row per key in the big-map's own table.
func TestProcessBigmapUpdate_TwoEntries(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KBigMap, Name: "ledger",
		Left:  &michelson.T{Kind: michelson.KAddress},
		Right: &michelson.T{Kind: michelson.KInt, Name: "balance"},
	}
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)
	require.Equal(t, relational.RABigMap, ra.Kind)

	p := NewProcessor(nil, nil)
	tx := testTx()
	v := &michelson.V{Kind: michelson.VInt, Int: bigInt(42)}

	require.NoError(t, p.processRootValue(v, ra, tx, "storage"))
	binding, ok := p.bigmapMap[42]
	require.True(t, ok)
	require.Equal(t, ra.Table, binding.RA.Table)

	require.NoError(t, p.processBigmapUpdate(opFor(42, "key-a-hash", `{"bytes":"0000aaaa"}`, `{"int":"10"}`), tx))
	require.NoError(t, p.processBigmapUpdate(opFor(42, "key-b-hash", `{"bytes":"0000bbbb"}`, `{"int":"20"}`), tx))

	row1 := findInsert(t, p, ra.Table, 2)
	require.Equal(t, int64(10), row1.Columns["balance"].Int.Int64())
	row2 := findInsert(t, p, ra.Table, 3)
	require.Equal(t, int64(20), row2.Columns["balance"].Int.Int64())

	require.Len(t, p.bigmapMetaActions, 1)
	require.Equal(t, "alloc", p.bigmapMetaActions[0].Action)
}

// A bigmap delete writes a deleted=true row rather than walking the value
// side.
func TestProcessBigmapUpdate_Delete(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KBigMap, Name: "ledger2",
		Left:  &michelson.T{Kind: michelson.KAddress},
		Right: &michelson.T{Kind: michelson.KInt, Name: "balance"},
	}
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)

	p := NewProcessor(nil, nil)
	tx := testTx()
	require.NoError(t, p.processRootValue(&michelson.V{Kind: michelson.VInt, Int: bigInt(7)}, ra, tx, "storage"))

	op := opFor(7, "key-a-hash", `{"bytes":"0000aaaa"}`, "")
	op.Kind = bigmap.OpDelete
	require.NoError(t, p.processBigmapUpdate(op, tx))

	row := findInsert(t, p, ra.Table, 2)
	require.True(t, row.Columns["deleted"].Bool)
}

func bigInt(n int64) *big.Int { return big.NewInt(n) }

func opFor(bigmapID int32, keyHash, keyJSON, valueJSON string) bigmap.Op {
	return bigmap.Op{Kind: bigmap.OpUpdate, Bigmap: bigmapID, KeyHash: keyHash, Key: keyJSON, Value: valueJSON}
}
