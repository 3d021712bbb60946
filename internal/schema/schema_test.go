package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
)

func compileOne(t *testing.T, ty *michelson.T) *Schema {
	t.Helper()
	ra, err := relational.Build(relational.NewContext(), ty, relational.NewIndexes())
	require.NoError(t, err)
	s, err := Compile(map[string]*relational.RA{"storage": ra})
	require.NoError(t, err)
	return s
}

func TestCompile_RootLeaf(t *testing.T) {
	s := compileOne(t, &michelson.T{Kind: michelson.KString, Name: "owner"})
	require.Contains(t, s.Tables, "storage")
	require.True(t, s.Tables["storage"].HasColumn("owner"))
}

func TestCompile_BigMapTracksChanges(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KBigMap, Name: "ledger",
		Left:  &michelson.T{Kind: michelson.KAddress, Name: "idx_owner"},
		Right: &michelson.T{Kind: michelson.KInt, Name: "balance"},
	}
	s := compileOne(t, ty)
	tbl := s.Tables["storage.ledger"]
	require.NotNil(t, tbl)
	require.False(t, tbl.ContainsSnapshots())
	require.Equal(t, []string{"id", "tx_context_id", "deleted", "bigmap_id"}, tbl.ReservedColumns())
}

func TestCompile_SetKeepsUniqueness(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Unique: true, Name: "members",
		Left: &michelson.T{Kind: michelson.KAddress, Name: "idx_addr"},
	}
	s := compileOne(t, ty)
	require.True(t, s.Tables["storage.members"].HasUniqueness())
}

func TestCompile_ListDropsUniqueness(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Unique: false, Name: "log",
		Left: &michelson.T{Kind: michelson.KString, Name: "entry"},
	}
	s := compileOne(t, ty)
	require.False(t, s.Tables["storage.log"].HasUniqueness())
}

func TestCompile_ForeignKeyToParent(t *testing.T) {
	ty := &michelson.T{
		Kind: michelson.KList, Name: "items",
		Left: &michelson.T{Kind: michelson.KInt, Name: "v"},
	}
	s := compileOne(t, ty)
	tbl := s.Tables["storage.items"]
	fks := tbl.ForeignKeys()
	require.Len(t, fks, 1)
	require.Equal(t, "storage_id", fks[0].Column)
	require.Equal(t, "storage", fks[0].RefTable)
}

func TestDDL_CreateTableAndView(t *testing.T) {
	s := compileOne(t, &michelson.T{
		Kind: michelson.KBigMap, Name: "ledger",
		Left:  &michelson.T{Kind: michelson.KAddress, Name: "idx_owner"},
		Right: &michelson.T{Kind: michelson.KInt, Name: "balance"},
	})
	ddl, err := SchemaDDL("my_contract", s)
	require.NoError(t, err)
	require.Contains(t, ddl, `CREATE SCHEMA IF NOT EXISTS "my_contract"`)
	require.Contains(t, ddl, `CREATE TABLE "my_contract"."storage.ledger"`)
	require.Contains(t, ddl, "deleted BOOLEAN")
	require.Contains(t, ddl, `CREATE VIEW "my_contract"."storage.ledger_live"`)
}

func TestCompile_ReservedBigmapClearsTable(t *testing.T) {
	s := compileOne(t, &michelson.T{Kind: michelson.KString, Name: "owner"})
	require.Contains(t, s.Tables, reservedBigmapClearsTable)
	require.False(t, s.Tables[reservedBigmapClearsTable].ContainsSnapshots())
}
