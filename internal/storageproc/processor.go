package storageproc

import (
	"context"
	"fmt"
	"strconv"

	"tzindexer/internal/bigmap"
	"tzindexer/internal/chain"
)

// insertKey identifies one emitted row across the whole processing run:
// which table it lands in and its own synthetic id.
type insertKey struct {
	Table string
	ID    int64
}

// bigmapKeyhashKey is the dedup key spec.md §4.7 requires: the same
// (bigmap, tx context, key hash) combination must only ever write one row,
// no matter how many times a copy chain or a repeated diff entry surfaces
// it.
type bigmapKeyhashKey struct {
	Bigmap  int32
	Tx      chain.TxKey
	KeyHash string
}

// bigmapDepKey dedups the contract-level dependency records ProcessBlock
// emits when one contract's big-map was populated, even partially, from
// another contract's via a Copy.
type bigmapDepKey struct {
	Contract string
	Bigmap   int32
	DeepCopy bool
}

// BigmapMetaAction is a non-row side effect of processing a block's
// big-map diffs: an Alloc (the first time a bigmap id is bound to a
// storage position) or a Clear, neither of which has a natural Insert
// shape of its own.
type BigmapMetaAction struct {
	TxContextID int64
	BigmapID    int32
	Action      string // "alloc" or "clear"
	Detail      map[string]string
}

// BigmapContractDep records that contract's big-map bigmap was (fully or
// partially, per DeepCopy) populated by copying from another contract's
// big-map, the input internal/repository needs to resolve cross-contract
// indexing order.
type BigmapContractDep struct {
	SourceContract string
	SourceBigmap   int32
	DeepCopy       bool
}

// BigmapKeyhashRow is one entry of the shared bigmap_keyhashes table
// (spec.md §6): a deduplicated record of a key touching a big-map during
// this processing run, independent of whichever per-contract table its
// value also landed in — this is what internal/repository.BigmapKeys
// reads back to materialize deep copies across batch boundaries.
type BigmapKeyhashRow struct {
	TxContextID int64
	BigmapID    int32
	KeyHash     string
	Key         string
	Value       string // empty for a delete
}

// Tx is one row of the shared txs table (spec.md §6): the raw
// entrypoint-call content paired with the transaction context it
// occurred in, mirroring que-pasa's TxContextMap pairing each TxContext
// with a Tx of its own (original_source/src/storage_update/processor.rs).
type Tx struct {
	TxContextID int64
	Entrypoint  string
	Parameters  string // raw Micheline JSON of the call's argument, empty when none
}

// Result is everything one ProcessBlock call produced: every row to
// insert, every transaction context it interned, and its big-map side
// effects.
type Result struct {
	Inserts            []*chain.Insert
	TxContexts         []chain.TxContext
	Txs                []Tx
	BigmapMetaActions  []BigmapMetaAction
	BigmapContractDeps []BigmapContractDep
	BigmapKeyhashes    []BigmapKeyhashRow
}

// Processor co-walks one contract's observed values (storage and
// entrypoint parameters) against its compiled relational AST for a single
// block, accumulating rows, big-map side effects and interned transaction
// contexts. One Processor is good for exactly one (contract, block) run;
// internal/repository is responsible for merging many runs' 1-based id
// spaces into one globally unique space at commit time.
type Processor struct {
	idgen *idGenerator

	inserts map[insertKey]*chain.Insert

	bigmapMap       map[int32]bigmapBinding
	bigmapKeyhashes map[bigmapKeyhashKey]bool
	keyhashRows     []BigmapKeyhashRow

	bigmapMetaActions  []BigmapMetaAction
	bigmapContractDeps map[bigmapDepKey]BigmapContractDep

	txContexts map[chain.TxKey]chain.TxContext
	txs        map[chain.TxKey]Tx

	storageGetter StorageGetter
	bigmapKeys    BigmapKeysGetter
}

// NewProcessor returns a fresh Processor. storageGetter and bigmapKeys may
// both be nil; ProcessBlock degrades gracefully (skipping originations
// with no storage value of their own, and skipping deep-copy
// materialization) when they are.
func NewProcessor(storageGetter StorageGetter, bigmapKeys BigmapKeysGetter) *Processor {
	return &Processor{
		idgen:               newIDGenerator(),
		inserts:             make(map[insertKey]*chain.Insert),
		bigmapMap:           make(map[int32]bigmapBinding),
		bigmapKeyhashes:     make(map[bigmapKeyhashKey]bool),
		bigmapContractDeps:  make(map[bigmapDepKey]BigmapContractDep),
		txContexts:          make(map[chain.TxKey]chain.TxContext),
		txs:                 make(map[chain.TxKey]Tx),
		storageGetter:       storageGetter,
		bigmapKeys:          bigmapKeys,
	}
}

// observation is one applied invocation of contract found somewhere in a
// block's operation tree: its transaction context, the entrypoint
// parameters it was called with (if any), and the storage snapshot the
// node reported afterward (nil only for an origination whose operation
// result carried none).
type observation struct {
	tx         chain.TxContext
	entrypoint string
	params     []byte
	storage    []byte
	origination bool
}

// ProcessBlock walks every observation of contract in block, emitting the
// rows, big-map side effects, and interned transaction contexts of
// spec.md §4.6/§4.7's processing model into a single Result.
func (p *Processor) ProcessBlock(ctx context.Context, block *chain.Block, contract *Contract) (*Result, error) {
	observations := p.observationsForContract(block, contract.Address)
	allEntries := p.collectBigmapEntries(block)

	for _, obs := range observations {
		tx := p.internTxContext(obs.tx)
		if _, seen := p.txs[tx.Key()]; !seen {
			p.txs[tx.Key()] = Tx{TxContextID: tx.ID, Entrypoint: obs.entrypoint, Parameters: string(obs.params)}
		}

		if obs.params != nil && obs.entrypoint != "" {
			if ra, ok := contract.EntrypointASTs[obs.entrypoint]; ok {
				v, err := parseValueJSON(string(obs.params))
				if err != nil {
					return nil, fmt.Errorf("storageproc: %s params: %w", tx, err)
				}
				if err := p.processRootValue(v, ra, tx, "entry."+obs.entrypoint); err != nil {
					return nil, fmt.Errorf("storageproc: %s params: %w", tx, err)
				}
			}
		}

		storage := obs.storage
		if storage == nil && obs.origination && p.storageGetter != nil {
			fetched, err := p.storageGetter.ContractStorage(ctx, contract.Address, tx.Level)
			if err != nil {
				return nil, fmt.Errorf("storageproc: fetching origination storage for %s: %w", contract.Address, err)
			}
			storage = fetched
		}
		if storage != nil {
			v, err := parseValueJSON(string(storage))
			if err != nil {
				return nil, fmt.Errorf("storageproc: %s storage: %w", tx, err)
			}
			if err := p.processRootValue(v, contract.StorageAST, tx, "storage"); err != nil {
				return nil, fmt.Errorf("storageproc: %s storage: %w", tx, err)
			}
		}

		for bigmapID := range p.bigmapMap {
			deps, ops := bigmap.Normalize(allEntries, bigmapID, tx)
			for _, op := range ops {
				if err := p.processBigmapOp(op, tx); err != nil {
					return nil, fmt.Errorf("storageproc: %s bigmap %d: %w", tx, bigmapID, err)
				}
			}
			for _, dep := range deps {
				deep := bigmap.IsPersistent(bigmapID)
				key := bigmapDepKey{Contract: contract.Address, Bigmap: dep, DeepCopy: deep}
				if _, seen := p.bigmapContractDeps[key]; !seen {
					p.bigmapContractDeps[key] = BigmapContractDep{SourceContract: contract.Address, SourceBigmap: dep, DeepCopy: deep}
				}
				if deep {
					if err := p.processBigmapCopy(ctx, tx, dep, bigmapID); err != nil {
						return nil, fmt.Errorf("storageproc: %s bigmap copy %d->%d: %w", tx, dep, bigmapID, err)
					}
				}
			}
		}
	}

	return p.result(), nil
}

// observationsForContract walks block's operation groups looking for
// every applied content or internal content whose destination is
// contract, or whose operation result originated it, building the
// ordered observation list ProcessBlock consumes.
func (p *Processor) observationsForContract(block *chain.Block, contractAddr string) []observation {
	var out []observation
	for groupNum, group := range block.Operations {
		for opNum, op := range group {
			for contentNum, content := range op.Contents {
				res := content.Metadata.OperationResult
				if res == nil || res.Status != "applied" {
					continue
				}

				if content.Destination != nil && *content.Destination == contractAddr {
					out = append(out, observation{
						tx:         p.buildTxContext(block, op, groupNum, opNum, contentNum, nil, contractAddr, content),
						entrypoint: entrypointOf(content.Parameters),
						params:     paramsValueOf(content.Parameters),
						storage:    res.Storage,
					})
				}
				for _, origin := range res.OriginatedContracts {
					if origin == contractAddr {
						out = append(out, observation{
							tx:          p.buildTxContext(block, op, groupNum, opNum, contentNum, nil, contractAddr, content),
							storage:     res.Storage,
							origination: true,
						})
					}
				}

				for internalNum := range content.Metadata.InternalOperationResults {
					internal := content.Metadata.InternalOperationResults[internalNum]
					n := int32(internalNum)
					ires := internal.Result
					if internal.Destination != nil && *internal.Destination == contractAddr {
						out = append(out, observation{
							tx:         p.buildInternalTxContext(block, op, groupNum, opNum, contentNum, n, contractAddr, internal),
							entrypoint: entrypointOf(internal.Parameters),
							params:     paramsValueOf(internal.Parameters),
							storage:    ires.Storage,
						})
					}
					for _, origin := range ires.OriginatedContracts {
						if origin == contractAddr {
							out = append(out, observation{
								tx:          p.buildInternalTxContext(block, op, groupNum, opNum, contentNum, n, contractAddr, internal),
								storage:     ires.Storage,
								origination: true,
							})
						}
					}
				}
			}
		}
	}
	return out
}

func entrypointOf(p *chain.Params) string {
	if p == nil {
		return ""
	}
	return p.Entrypoint
}

func paramsValueOf(p *chain.Params) []byte {
	if p == nil {
		return nil
	}
	return p.Value
}

func (p *Processor) buildTxContext(block *chain.Block, op chain.Operation, groupNum, opNum, contentNum int, internalNum *int32, contract string, content chain.OperationContent) chain.TxContext {
	source := ""
	if content.Source != nil {
		source = *content.Source
	}
	dest := ""
	if content.Destination != nil {
		dest = *content.Destination
	}
	return chain.TxContext{
		Level:                block.Header.Level,
		Contract:             contract,
		OperationHash:        op.Hash,
		OperationGroupNumber: int32(groupNum),
		OperationNumber:      int32(opNum),
		ContentNumber:        int32(contentNum),
		InternalNumber:       internalNum,
		Source:               source,
		Destination:          dest,
		Entrypoint:           entrypointOf(content.Parameters),
	}
}

func (p *Processor) buildInternalTxContext(block *chain.Block, op chain.Operation, groupNum, opNum, contentNum int, internalNum int32, contract string, internal chain.InternalOperationResult) chain.TxContext {
	dest := ""
	if internal.Destination != nil {
		dest = *internal.Destination
	}
	n := internalNum
	return chain.TxContext{
		Level:                block.Header.Level,
		Contract:             contract,
		OperationHash:        op.Hash,
		OperationGroupNumber: int32(groupNum),
		OperationNumber:      int32(opNum),
		ContentNumber:        int32(contentNum),
		InternalNumber:       &n,
		Source:               internal.Source,
		Destination:          dest,
		Entrypoint:           entrypointOf(internal.Parameters),
	}
}

// internTxContext assigns tx its ID the first time its identity (Key) is
// seen within this run, and returns that canonical, ID-bearing copy on
// every subsequent call with the same identity.
// internTxContext assigns a tx context its id from the same counter rows
// get theirs from — que-pasa's own StorageProcessor::tx_context draws a
// tx_context's id from the identical id_generator used for row ids,
// rather than keeping the two id spaces separate, and
// internal/repository's offsetting step (spec.md §4.8 step 4) depends on
// that to keep "every id" contiguous per processed unit.
func (p *Processor) internTxContext(tx chain.TxContext) chain.TxContext {
	key := tx.Key()
	if existing, ok := p.txContexts[key]; ok {
		return existing
	}
	tx.ID = p.idgen.Next()
	p.txContexts[key] = tx
	return tx
}

// collectBigmapEntries walks the whole block (not filtered to any one
// contract, since a Copy's dependency chain can cross contract
// boundaries) into the bigmap.Entry list Normalize consumes.
func (p *Processor) collectBigmapEntries(block *chain.Block) []bigmap.Entry {
	var out []bigmap.Entry
	for groupNum, group := range block.Operations {
		for opNum, op := range group {
			for contentNum, content := range op.Contents {
				res := content.Metadata.OperationResult
				if res == nil || res.Status != "applied" {
					continue
				}
				if len(res.BigMapDiff) > 0 {
					tx := p.buildTxContext(block, op, groupNum, opNum, contentNum, nil, derefOr(content.Destination, ""), content)
					out = append(out, bigmap.Entry{Ctx: p.internTxContext(tx), Ops: convertDiffs(res.BigMapDiff)})
				}
				for internalNum := range content.Metadata.InternalOperationResults {
					internal := content.Metadata.InternalOperationResults[internalNum]
					if len(internal.Result.BigMapDiff) == 0 {
						continue
					}
					n := int32(internalNum)
					tx := p.buildInternalTxContext(block, op, groupNum, opNum, contentNum, n, derefOr(internal.Destination, internal.Source), internal)
					out = append(out, bigmap.Entry{Ctx: p.internTxContext(tx), Ops: convertDiffs(internal.Result.BigMapDiff)})
				}
			}
		}
	}
	return out
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// convertDiffs maps a node's raw big_map_diff entries onto bigmap.Op.
// Alloc is dropped: spec.md §4.5 notes Alloc isn't walked by the
// normalizer (the processor synthesizes its own Alloc meta-action the
// first time it binds a bigmap id). Remove, which discards a whole
// big-map, becomes a Clear op on that big-map.
func convertDiffs(diffs []chain.BigMapDiff) []bigmap.Op {
	var ops []bigmap.Op
	for _, d := range diffs {
		switch d.Action {
		case "update":
			key := string(d.Key)
			op := bigmap.Op{Bigmap: parseBigmapID(d.BigMap), KeyHash: keyHash(key), Key: key}
			if d.Value == nil {
				op.Kind = bigmap.OpDelete
			} else {
				op.Kind = bigmap.OpUpdate
				op.Value = string(d.Value)
			}
			ops = append(ops, op)
		case "copy":
			ops = append(ops, bigmap.Op{
				Kind:   bigmap.OpCopy,
				Bigmap: parseBigmapID(d.DestinationBigMap),
				Source: parseBigmapID(d.SourceBigMap),
			})
		case "remove":
			ops = append(ops, bigmap.Op{Kind: bigmap.OpClear, Bigmap: parseBigmapID(d.BigMap)})
		}
	}
	return ops
}

func parseBigmapID(s *string) int32 {
	if s == nil {
		return 0
	}
	n, err := strconv.ParseInt(*s, 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

// result flattens the processor's internal maps into the ordered,
// exported shape callers consume.
func (p *Processor) result() *Result {
	out := &Result{}
	for _, ins := range p.inserts {
		out.Inserts = append(out.Inserts, ins)
	}
	for _, tx := range p.txContexts {
		out.TxContexts = append(out.TxContexts, tx)
	}
	for _, tx := range p.txs {
		out.Txs = append(out.Txs, tx)
	}
	out.BigmapMetaActions = p.bigmapMetaActions
	for _, dep := range p.bigmapContractDeps {
		out.BigmapContractDeps = append(out.BigmapContractDeps, dep)
	}
	out.BigmapKeyhashes = p.keyhashRows
	return out
}
