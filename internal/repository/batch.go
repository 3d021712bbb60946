package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tzindexer/internal/chain"
	"tzindexer/internal/schema"
	"tzindexer/internal/storageproc"
)

// insertBatchSize caps how many rows one multi-row INSERT statement
// carries, matching original_source/src/sql/db.rs's DBClient::INSERT_BATCH_SIZE.
const insertBatchSize = 100

// ProcessedContractBlock is one contract's storageproc.Result for one
// level, ready to be folded into a commit batch — grounded on
// original_source/src/sql/inserter.rs's ProcessedContractBlock.
type ProcessedContractBlock struct {
	Level         chain.LevelMeta
	Contract      string
	IsOrigination bool
	Result        *storageproc.Result
}

// offsetIDs shifts every id b.Result produced by offset — inserts' own
// id/fk_id and their embedded tx_context_id column, every interned tx
// context's id, and every bigmap side effect's tx_context_id — and
// returns the new running maximum, exactly mirroring
// ProcessedContractBlock::offset_ids/offset_inserts/offset_txs.
func (b *ProcessedContractBlock) offsetIDs(offset int64) int64 {
	max := offset
	for _, ins := range b.Result.Inserts {
		ins.ID += offset
		if ins.FKID != nil {
			shifted := *ins.FKID + offset
			ins.FKID = &shifted
		}
		if v, ok := ins.Columns["tx_context_id"]; ok && v.Int != nil {
			ins.Columns["tx_context_id"] = chain.IntValue(addInt64ToBig(v.Int, offset))
		}
		if ins.ID > max {
			max = ins.ID
		}
		if ins.FKID != nil && *ins.FKID > max {
			max = *ins.FKID
		}
	}
	for i := range b.Result.TxContexts {
		b.Result.TxContexts[i].ID += offset
		if b.Result.TxContexts[i].ID > max {
			max = b.Result.TxContexts[i].ID
		}
	}
	for i := range b.Result.Txs {
		b.Result.Txs[i].TxContextID += offset
	}
	for i := range b.Result.BigmapMetaActions {
		b.Result.BigmapMetaActions[i].TxContextID += offset
	}
	for i := range b.Result.BigmapKeyhashes {
		b.Result.BigmapKeyhashes[i].TxContextID += offset
	}
	return max
}

func addInt64ToBig(n *chain.BigInt, offset int64) *chain.BigInt {
	return new(chain.BigInt).Add(n, bigFromInt64(offset))
}

func bigFromInt64(n int64) *chain.BigInt {
	b := new(chain.BigInt)
	b.SetInt64(n)
	return b
}

// commitBatch is the accumulator CommitBatch folds a batch of
// ProcessedContractBlocks into before writing — mirroring
// original_source/src/sql/inserter.rs's ProcessedBatch.
type commitBatch struct {
	levels          map[int32]chain.LevelMeta
	contractLevels  []contractLevelRow
	contractDeps    []contractDepRow
	txContexts      []chain.TxContext
	txs             []storageproc.Tx
	bigmapKeyhashes []storageproc.BigmapKeyhashRow
	bigmapMeta      []storageproc.BigmapMetaAction
	contractInserts map[string][]*chain.Insert

	maxID int64
}

type contractLevelRow struct {
	Contract      string
	Level         int32
	IsOrigination bool
}

type contractDepRow struct {
	Level      int32
	Dependency string
	Contract   string
}

func newCommitBatch(maxID int64) *commitBatch {
	return &commitBatch{
		levels:          make(map[int32]chain.LevelMeta),
		contractInserts: make(map[string][]*chain.Insert),
		maxID:           maxID,
	}
}

func (cb *commitBatch) add(b *ProcessedContractBlock) {
	cb.maxID = b.offsetIDs(cb.maxID)

	if _, ok := cb.levels[b.Level.Level]; !ok {
		cb.levels[b.Level.Level] = b.Level
	}
	cb.contractLevels = append(cb.contractLevels, contractLevelRow{
		Contract:      b.Contract,
		Level:         b.Level.Level,
		IsOrigination: b.IsOrigination,
	})
	cb.txContexts = append(cb.txContexts, b.Result.TxContexts...)
	cb.txs = append(cb.txs, b.Result.Txs...)
	cb.bigmapKeyhashes = append(cb.bigmapKeyhashes, b.Result.BigmapKeyhashes...)
	cb.bigmapMeta = append(cb.bigmapMeta, b.Result.BigmapMetaActions...)
	cb.contractInserts[b.Contract] = append(cb.contractInserts[b.Contract], b.Result.Inserts...)

	for _, dep := range b.Result.BigmapContractDeps {
		cb.contractDeps = append(cb.contractDeps, contractDepRow{
			Level:      b.Level.Level,
			Dependency: dep.SourceContract,
			Contract:   b.Contract,
		})
	}
}

// CommitBatch atomically persists a batch of already-processed blocks:
// read max_id FOR UPDATE, offset every block's ids into one contiguous
// space on top of it, insert levels/contract bookkeeping/tx
// contexts/bigmap side effects/per-contract rows, write back the new
// max_id, and commit — spec.md §4.8 step 4, grounded on
// original_source/src/sql/inserter.rs's insert_batch.
func (r *Repository) CommitBatch(ctx context.Context, blocks []ProcessedContractBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: beginning batch commit: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxID int64
	if err := tx.QueryRow(ctx, `SELECT max_id FROM max_id FOR UPDATE`).Scan(&maxID); err != nil {
		return fmt.Errorf("repository: reading max_id: %w", err)
	}

	cb := newCommitBatch(maxID)
	for i := range blocks {
		cb.add(&blocks[i])
	}

	if err := saveLevels(ctx, tx, cb.levels); err != nil {
		return err
	}
	if err := saveContractLevels(ctx, tx, cb.contractLevels); err != nil {
		return err
	}
	if err := saveContractDeps(ctx, tx, cb.contractDeps); err != nil {
		return err
	}
	if err := saveTxContexts(ctx, tx, cb.txContexts); err != nil {
		return err
	}
	if err := saveTxs(ctx, tx, cb.txs); err != nil {
		return err
	}
	if err := saveBigmapKeyhashes(ctx, tx, cb.bigmapKeyhashes); err != nil {
		return err
	}
	if err := saveBigmapMetaActions(ctx, tx, cb.bigmapMeta); err != nil {
		return err
	}

	contracts := make([]string, 0, len(cb.contractInserts))
	for c := range cb.contractInserts {
		contracts = append(contracts, c)
	}
	sort.Strings(contracts)
	for _, contract := range contracts {
		if err := applyInserts(ctx, tx, contract, cb.contractInserts[contract]); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE max_id SET max_id = $1`, cb.maxID); err != nil {
		return fmt.Errorf("repository: updating max_id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: committing batch: %w", err)
	}

	r.log.Info("committed batch",
		zap.Int("blocks", len(blocks)),
		zap.Int("levels", len(cb.levels)),
		zap.Int("tx_contexts", len(cb.txContexts)),
		zap.Int64("max_id", cb.maxID))
	return nil
}

func saveLevels(ctx context.Context, tx pgx.Tx, levels map[int32]chain.LevelMeta) error {
	for _, lvl := range levels {
		var bakedAt *time.Time
		if lvl.BakedAt != nil {
			t := time.Unix(*lvl.BakedAt, 0).UTC()
			bakedAt = &t
		}
		_, err := tx.Exec(ctx, `
INSERT INTO levels (level, hash, prev_hash, baked_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (level) DO NOTHING`,
			lvl.Level, lvl.Hash, lvl.PrevHash, bakedAt)
		if err != nil {
			return fmt.Errorf("repository: saving level %d: %w", lvl.Level, err)
		}
	}
	return nil
}

func saveContractLevels(ctx context.Context, tx pgx.Tx, rows []contractLevelRow) error {
	for _, row := range rows {
		_, err := tx.Exec(ctx, `
INSERT INTO contract_levels (contract, level, is_origination)
VALUES ($1, $2, $3)
ON CONFLICT (contract, level) DO UPDATE SET is_origination = EXCLUDED.is_origination OR contract_levels.is_origination`,
			row.Contract, row.Level, row.IsOrigination)
		if err != nil {
			return fmt.Errorf("repository: saving contract level (%s, %d): %w", row.Contract, row.Level, err)
		}
	}
	return nil
}

func saveContractDeps(ctx context.Context, tx pgx.Tx, rows []contractDepRow) error {
	for _, row := range rows {
		_, err := tx.Exec(ctx, `
INSERT INTO contract_deps (level, dependency, contract) VALUES ($1, $2, $3)`,
			row.Level, row.Dependency, row.Contract)
		if err != nil {
			return fmt.Errorf("repository: saving contract dep (%s <- %s): %w", row.Contract, row.Dependency, err)
		}
	}
	return nil
}

func saveTxContexts(ctx context.Context, tx pgx.Tx, ctxs []chain.TxContext) error {
	for _, batch := range chunkTxContexts(ctxs, insertBatchSize) {
		var b strings.Builder
		args := make([]any, 0, len(batch)*11)
		b.WriteString(`INSERT INTO tx_contexts
(id, level, contract, operation_hash, operation_group_number, operation_number, content_number, internal_number, source, destination, entrypoint)
VALUES `)
		for i, t := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			base := i * 11
			fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11)
			args = append(args, t.ID, t.Level, t.Contract, nullIfEmpty(t.OperationHash),
				t.OperationGroupNumber, t.OperationNumber, t.ContentNumber, t.InternalNumber,
				nullIfEmpty(t.Source), nullIfEmpty(t.Destination), nullIfEmpty(t.Entrypoint))
		}
		if _, err := tx.Exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("repository: saving tx contexts: %w", err)
		}
	}
	return nil
}

func saveTxs(ctx context.Context, tx pgx.Tx, rows []storageproc.Tx) error {
	for _, chunk := range chunkTxs(rows, insertBatchSize) {
		var b strings.Builder
		args := make([]any, 0, len(chunk)*3)
		b.WriteString(`INSERT INTO txs (tx_context_id, entrypoint, parameters) VALUES `)
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			base := i * 3
			fmt.Fprintf(&b, "($%d, $%d, $%d)", base+1, base+2, base+3)
			args = append(args, row.TxContextID, nullIfEmpty(row.Entrypoint), nullIfEmpty(row.Parameters))
		}
		b.WriteString(" ON CONFLICT (tx_context_id) DO NOTHING")
		if _, err := tx.Exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("repository: saving txs: %w", err)
		}
	}
	return nil
}

func saveBigmapKeyhashes(ctx context.Context, tx pgx.Tx, rows []storageproc.BigmapKeyhashRow) error {
	for _, chunk := range chunkKeyhashes(rows, insertBatchSize) {
		var b strings.Builder
		args := make([]any, 0, len(chunk)*5)
		b.WriteString(`INSERT INTO bigmap_keyhashes (bigmap_id, tx_context_id, keyhash, key, value) VALUES `)
		for i, row := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			base := i * 5
			fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
			args = append(args, row.BigmapID, row.TxContextID, row.KeyHash, row.Key, nullIfEmpty(row.Value))
		}
		if _, err := tx.Exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("repository: saving bigmap keyhashes: %w", err)
		}
	}
	return nil
}

func saveBigmapMetaActions(ctx context.Context, tx pgx.Tx, rows []storageproc.BigmapMetaAction) error {
	for _, row := range rows {
		var detail *string
		if len(row.Detail) > 0 {
			b, err := json.Marshal(row.Detail)
			if err != nil {
				return fmt.Errorf("repository: encoding bigmap meta action detail: %w", err)
			}
			s := string(b)
			detail = &s
		}
		_, err := tx.Exec(ctx, `
INSERT INTO bigmap_meta_actions (bigmap_id, tx_context_id, action, detail) VALUES ($1, $2, $3, $4)`,
			row.BigmapID, row.TxContextID, row.Action, detail)
		if err != nil {
			return fmt.Errorf("repository: saving bigmap meta action: %w", err)
		}
	}
	return nil
}

// applyInserts groups contract's rows by (table, column set) and issues
// one chunked multi-row INSERT per group, sorted for determinism —
// mirroring original_source/src/sql/db.rs's DBClient::apply_inserts.
func applyInserts(ctx context.Context, tx pgx.Tx, contract string, inserts []*chain.Insert) error {
	groups := make(map[string][]*chain.Insert)
	for _, ins := range inserts {
		key := ins.Table + "\x00" + strings.Join(sortedColumnNames(ins.Columns), ",")
		groups[key] = append(groups[key], ins)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rows := groups[key]
		for start := 0; start < len(rows); start += insertBatchSize {
			end := start + insertBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := applyInsertsForTable(ctx, tx, contract, rows[start:end]); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyInsertsForTable(ctx context.Context, tx pgx.Tx, contract string, rows []*chain.Insert) error {
	if len(rows) == 0 {
		return nil
	}
	table := rows[0].Table
	columns := sortedColumnNames(rows[0].Columns)

	hasParent := rows[0].FKID != nil

	allColumns := []string{"id"}
	if hasParent {
		parent, _ := schema.ParentName(table)
		allColumns = append(allColumns, parent+"_id")
	}
	allColumns = append(allColumns, columns...)

	var b strings.Builder
	args := make([]any, 0, len(rows)*len(allColumns))
	quoted := make([]string, len(allColumns))
	for i, c := range allColumns {
		quoted[i] = quoteIdent(c)
	}
	fmt.Fprintf(&b, "INSERT INTO %s.%s (%s) VALUES ",
		quoteIdent(contract), quoteIdent(table), strings.Join(quoted, ", "))

	n := len(allColumns)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range allColumns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*n+j+1)
		}
		b.WriteString(")")

		args = append(args, row.ID)
		if hasParent {
			args = append(args, *row.FKID)
		}
		for _, col := range columns {
			args = append(args, sqlArg(row.Columns[col]))
		}
	}

	if _, err := tx.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("repository: inserting into %s.%s: %w", contract, table, err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sortedColumnNames(cols map[string]chain.Value) []string {
	names := make([]string, 0, len(cols))
	for c := range cols {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

func sqlArg(v chain.Value) any {
	if v.Null {
		return nil
	}
	if v.IsBool {
		return v.Bool
	}
	if v.Int != nil {
		return v.Int.String()
	}
	return v.Str
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func chunkTxContexts(in []chain.TxContext, size int) [][]chain.TxContext {
	var out [][]chain.TxContext
	for start := 0; start < len(in); start += size {
		end := start + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}

func chunkTxs(in []storageproc.Tx, size int) [][]storageproc.Tx {
	var out [][]storageproc.Tx
	for start := 0; start < len(in); start += size {
		end := start + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}

func chunkKeyhashes(in []storageproc.BigmapKeyhashRow, size int) [][]storageproc.BigmapKeyhashRow {
	var out [][]storageproc.BigmapKeyhashRow
	for start := 0; start < len(in); start += size {
		end := start + size
		if end > len(in) {
			end = len(in)
		}
		out = append(out, in[start:end])
	}
	return out
}
