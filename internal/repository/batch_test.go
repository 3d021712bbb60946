package repository

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/chain"
	"tzindexer/internal/storageproc"
)

func sampleBlock(contract string, level int32) *ProcessedContractBlock {
	fk := int64(1)
	return &ProcessedContractBlock{
		Level:    chain.LevelMeta{Level: level, Hash: "BL" + contract},
		Contract: contract,
		Result: &storageproc.Result{
			Inserts: []*chain.Insert{
				{Table: "storage", ID: 1, Columns: map[string]chain.Value{
					"tx_context_id": chain.IntValue(big.NewInt(1)),
				}},
				{Table: "storage.members", ID: 2, FKID: &fk, Columns: map[string]chain.Value{
					"tx_context_id": chain.IntValue(big.NewInt(1)),
					"name":          chain.StringValue("alice"),
				}},
			},
			TxContexts: []chain.TxContext{
				{Level: level, Contract: contract, ID: 1},
			},
			Txs: []storageproc.Tx{
				{TxContextID: 1, Entrypoint: "default"},
			},
			BigmapMetaActions: []storageproc.BigmapMetaAction{
				{TxContextID: 1, BigmapID: 10, Action: "alloc"},
			},
			BigmapKeyhashes: []storageproc.BigmapKeyhashRow{
				{TxContextID: 1, BigmapID: 10, KeyHash: "kh1", Key: `"a"`, Value: `"1"`},
			},
		},
	}
}

func TestOffsetIDs_ShiftsEveryIDSpace(t *testing.T) {
	b := sampleBlock("kt1", 100)

	max := b.offsetIDs(50)

	require.Equal(t, int64(51), b.Result.Inserts[0].ID)
	require.Equal(t, int64(52), b.Result.Inserts[1].ID)
	require.Equal(t, int64(51), *b.Result.Inserts[1].FKID)
	require.Equal(t, "51", b.Result.Inserts[0].Columns["tx_context_id"].Int.String())
	require.Equal(t, "51", b.Result.Inserts[1].Columns["tx_context_id"].Int.String())
	require.Equal(t, int64(51), b.Result.TxContexts[0].ID)
	require.Equal(t, int64(51), b.Result.Txs[0].TxContextID)
	require.Equal(t, int64(51), b.Result.BigmapMetaActions[0].TxContextID)
	require.Equal(t, int64(51), b.Result.BigmapKeyhashes[0].TxContextID)
	require.Equal(t, int64(52), max)
}

func TestOffsetIDs_EmptyResultKeepsOffsetAsMax(t *testing.T) {
	b := &ProcessedContractBlock{Result: &storageproc.Result{}}
	require.Equal(t, int64(7), b.offsetIDs(7))
}

func TestCommitBatch_AddDedupsLevelsAndGroupsByContract(t *testing.T) {
	b1 := sampleBlock("kt1", 100)
	b2 := sampleBlock("kt2", 100)

	cb := newCommitBatch(0)
	cb.add(b1)
	cb.add(b2)

	require.Len(t, cb.levels, 1, "both blocks share level 100")
	require.Len(t, cb.contractInserts["kt1"], 2)
	require.Len(t, cb.contractInserts["kt2"], 2)
	require.Len(t, cb.contractLevels, 2)
	// b1's own max (2, its highest id/fk_id) becomes the offset for b2
	require.Equal(t, int64(3), cb.contractInserts["kt2"][0].ID)
}

func TestSortedColumnNames_Deterministic(t *testing.T) {
	cols := map[string]chain.Value{"zeta": chain.NullValue(), "alpha": chain.NullValue(), "mid": chain.NullValue()}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, sortedColumnNames(cols))
}

func TestSqlArg(t *testing.T) {
	require.Nil(t, sqlArg(chain.NullValue()))
	require.Equal(t, true, sqlArg(chain.BoolValue(true)))
	require.Equal(t, "42", sqlArg(chain.IntValue(big.NewInt(42))))
	require.Equal(t, "hi", sqlArg(chain.StringValue("hi")))
}

func TestQuoteIdent_EscapesEmbeddedQuotes(t *testing.T) {
	require.Equal(t, `"storage.members"`, quoteIdent("storage.members"))
	require.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestChunking_SplitsIntoFixedSizeGroups(t *testing.T) {
	ctxs := make([]chain.TxContext, 250)
	chunks := chunkTxContexts(ctxs, 100)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 100)
	require.Len(t, chunks[2], 50)

	rows := make([]storageproc.BigmapKeyhashRow, 150)
	kchunks := chunkKeyhashes(rows, 100)
	require.Len(t, kchunks, 2)
	require.Len(t, kchunks[1], 50)
}
