package storageproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"tzindexer/internal/bigmap"
	"tzindexer/internal/chain"
	"tzindexer/internal/relational"
)

// bigmapBinding is what the processor remembers once it has seen a
// big-map id bound to a position in a storage/parameter tree: the row
// that owns it (for foreign-keying the big-map's rows) and the RA
// subtree describing its key/value shape.
type bigmapBinding struct {
	FKID int64
	RA   *relational.RA
}

// bindBigmap records the first sighting of bigmap id within this
// processing run, generating the Alloc meta-action que-pasa's processor
// synthesizes itself rather than reading from a diff (spec.md §4.5's
// note that Alloc isn't walked by the normalizer).
func (p *Processor) bindBigmap(id int32, fkID int64, ra *relational.RA, tx chain.TxContext) {
	if _, exists := p.bigmapMap[id]; exists {
		return
	}
	p.bigmapMap[id] = bigmapBinding{FKID: fkID, RA: ra}
	table, _ := ra.TableEntry()
	p.bigmapMetaActions = append(p.bigmapMetaActions, BigmapMetaAction{
		TxContextID: tx.ID,
		BigmapID:    id,
		Action:      "alloc",
		Detail:      map[string]string{"table": table},
	})
}

// processBigmapOp applies one normalized op (Update/Delete/Clear — Copy
// never appears here, it resolves to a dependency the caller dispatches
// separately) against whichever bigmap it targets.
func (p *Processor) processBigmapOp(op bigmap.Op, tx chain.TxContext) error {
	switch op.Kind {
	case bigmap.OpUpdate, bigmap.OpDelete:
		return p.processBigmapUpdate(op, tx)
	case bigmap.OpClear:
		p.bigmapMetaActions = append(p.bigmapMetaActions, BigmapMetaAction{
			TxContextID: tx.ID,
			BigmapID:    op.Bigmap,
			Action:      "clear",
		})
		return nil
	default:
		return nil
	}
}

func (p *Processor) processBigmapUpdate(op bigmap.Op, tx chain.TxContext) error {
	dedup := bigmapKeyhashKey{Bigmap: op.Bigmap, Tx: tx.Key(), KeyHash: op.KeyHash}
	if p.bigmapKeyhashes[dedup] {
		return nil
	}

	binding, ok := p.bigmapMap[op.Bigmap]
	if !ok {
		return nil
	}
	if binding.RA.Kind != relational.RABigMap {
		return fmt.Errorf("storageproc: bigmap %d bound to a non-bigmap relational node", op.Bigmap)
	}
	p.bigmapKeyhashes[dedup] = true

	row := procContext{LastTable: binding.RA.Table, ID: p.idgen.Next(), FKID: &binding.FKID}

	keyV, err := parseValueJSON(op.Key)
	if err != nil {
		return fmt.Errorf("storageproc: bigmap %d key: %w", op.Bigmap, err)
	}
	if err := p.processValue(row, keyV, binding.RA.KeyAST, tx); err != nil {
		return err
	}

	if op.Kind == bigmap.OpDelete || op.Value == "" {
		p.sqlAddCell(row, binding.RA.Table, "deleted", chain.BoolValue(true), tx)
	} else {
		valV, err := parseValueJSON(op.Value)
		if err != nil {
			return fmt.Errorf("storageproc: bigmap %d value: %w", op.Bigmap, err)
		}
		if err := p.processValue(row, valV, binding.RA.ValueAST, tx); err != nil {
			return err
		}
	}

	p.sqlAddCell(row, binding.RA.Table, "bigmap_id", chain.IntValue(big.NewInt(int64(op.Bigmap))), tx)

	p.keyhashRows = append(p.keyhashRows, BigmapKeyhashRow{
		TxContextID: tx.ID,
		BigmapID:    op.Bigmap,
		KeyHash:     op.KeyHash,
		Key:         op.Key,
		Value:       op.Value,
	})
	return nil
}

// processBigmapCopy is the deep-copy helper of spec.md §4.7: every live
// entry of srcBigmap at tx.Level-1 is replayed as a synthetic Update
// against destBigmap through the normal op path, so it benefits from the
// same dedup/binding/column-writing logic as a real diff entry would.
func (p *Processor) processBigmapCopy(ctx context.Context, tx chain.TxContext, srcBigmap, destBigmap int32) error {
	if p.bigmapKeys == nil {
		return nil
	}
	atLevel := tx.Level - 1
	entries, err := p.bigmapKeys.BigmapKeys(ctx, atLevel, srcBigmap)
	if err != nil {
		return fmt.Errorf("storageproc: fetching live keys of bigmap %d at level %d: %w", srcBigmap, atLevel, err)
	}
	for _, e := range entries {
		if e.Value == "" {
			continue
		}
		op := bigmap.Op{Kind: bigmap.OpUpdate, Bigmap: destBigmap, KeyHash: e.KeyHash, Key: e.Key, Value: e.Value}
		if err := p.processBigmapOp(op, tx); err != nil {
			return err
		}
	}
	return nil
}

// keyHash derives a stable, deduplication-only hash for a raw Micheline
// key's JSON text. This does not reproduce Tezos's own script-expr
// (blake2b + Base58Check) key-hash encoding — that requires packing the
// key through the Michelson binary encoder, which is out of scope here —
// it only needs to be stable and collision-free enough for the
// dedup/bookkeeping role bigmap_keyhashes plays (DESIGN.md).
func keyHash(rawKeyJSON string) string {
	sum := sha256.Sum256([]byte(rawKeyJSON))
	return hex.EncodeToString(sum[:16])
}
