package relational

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/michelson"
)

func TestBuild_LeafAtRoot(t *testing.T) {
	ty := &michelson.T{Kind: michelson.KString, Name: "contract_owner"}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RALeaf, ra.Kind)
	require.Equal(t, "storage", ra.Entry.TableName)
	require.Equal(t, "contract_owner", ra.Entry.ColumnName)
}

func TestBuild_SetOpensChildTable(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Unique: true, Name: "the_set",
		Left: &michelson.T{Kind: michelson.KInt, Name: "idx_foo"},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RAList, ra.Kind)
	require.Equal(t, "storage.the_set", ra.Table)
	require.Equal(t, RALeaf, ra.ValueAST.Kind)
}

func TestBuild_BigMapIndexAndValue(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KBigMap, Name: "m",
		Left:  &michelson.T{Kind: michelson.KInt, Name: "idx_foo"},
		Right: &michelson.T{Kind: michelson.KString, Name: "bar"},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RABigMap, ra.Kind)
	require.Equal(t, "storage.m", ra.Table)
	require.True(t, ra.KeyAST.Entry.IsIndex)
	require.Equal(t, "idx_idx_foo", ra.KeyAST.Entry.ColumnName)
	require.Equal(t, "bar", ra.ValueAST.Entry.ColumnName)
}

func TestBuild_OrEnumerationUnitBranches(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOr, Name: "status",
		Left:  &michelson.T{Kind: michelson.KUnit, Name: "active"},
		Right: &michelson.T{Kind: michelson.KUnit, Name: "closed"},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RAOrEnumeration, ra.Kind)
	require.Equal(t, "status", ra.OrUnfold.ColumnName)
	require.Equal(t, "active", ra.LeftAST.Entry.Value)
	require.Equal(t, "closed", ra.RightAST.Entry.Value)
}

func TestBuild_OrVariantRecordRequiresAnnotation(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOr, Name: "action",
		Left:  &michelson.T{Kind: michelson.KUnit, Name: "pause"},
		Right: &michelson.T{Kind: michelson.KInt}, // no annotation: must error
	}
	_, err := Build(NewContext(), ty, NewIndexes())
	require.Error(t, err)
}

func TestBuild_OrVariantRecordOpensChildTable(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOr, Name: "action",
		Left:  &michelson.T{Kind: michelson.KUnit, Name: "pause"},
		Right: &michelson.T{Kind: michelson.KInt, Name: "deposit"},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, "storage.deposit", ra.RightTable)
	require.Equal(t, "storage.deposit", ra.RightAST.Entry.TableName)
}

func TestBuild_OptionWrapsElemAST(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOption, Name: "maybe_owner",
		Left: &michelson.T{Kind: michelson.KAddress},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RAOption, ra.Kind)
	require.Equal(t, RALeaf, ra.ElemAST.Kind)
	require.Equal(t, "maybe_owner", ra.ElemAST.Entry.ColumnName)
}

func TestBuild_OptionOverBigMapStillOpensTable(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KOption, Name: "maybe_ledger",
		Left: &michelson.T{
			Kind: michelson.KBigMap, Name: "ledger",
			Left:  &michelson.T{Kind: michelson.KAddress},
			Right: &michelson.T{Kind: michelson.KInt, Name: "balance"},
		},
	}
	ra, err := Build(NewContext(), ty, NewIndexes())
	require.NoError(t, err)
	require.Equal(t, RAOption, ra.Kind)
	table, ok := ra.TableEntry()
	require.True(t, ok)
	require.Equal(t, "storage.ledger", table)
}

func TestBuild_BigMapKeyMustBePrimitive(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KBigMap, Name: "m",
		Left:  &michelson.T{Kind: michelson.KList, Left: &michelson.T{Kind: michelson.KInt}},
		Right: &michelson.T{Kind: michelson.KString},
	}
	_, err := Build(NewContext(), ty, NewIndexes())
	require.Error(t, err)
}
