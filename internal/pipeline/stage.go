package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tzindexer/internal/denylist"
	"tzindexer/internal/repository"
	"tzindexer/internal/rpc"
	"tzindexer/internal/storageproc"
)

// Stage runs storageproc.Processor over each fetched block, once per
// contract active in it, producing the repository.ProcessedContractBlock
// rows the committer persists — spec.md §4.8 steps 2-3 ("per contract
// active in the block: run 4.6"), grounded on
// original_source/src/block.rs's per-contract dispatch inside the main
// indexing loop.
type Stage struct {
	log      *zap.Logger
	registry *ContractRegistry
	client   *rpc.Client // storageproc.StorageGetter, for origination storage fetches
	repo     *repository.Repository
	deny     *denylist.List
}

func NewStage(log *zap.Logger, registry *ContractRegistry, client *rpc.Client, repo *repository.Repository, deny *denylist.List) *Stage {
	return &Stage{log: log, registry: registry, client: client, repo: repo, deny: deny}
}

// Run reads fetched blocks from in and writes one ProcessedContractBlock
// per (active contract, level) to out, in the same level order in
// arrived — spec.md §5's "the processor channel is drained in receive
// order (single consumer recommended)".
func (s *Stage) Run(ctx context.Context, in <-chan fetchedLevel, out chan<- repository.ProcessedContractBlock) error {
	defer close(out)

	for fl := range in {
		if err := s.processLevel(ctx, fl, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) processLevel(ctx context.Context, fl fetchedLevel, out chan<- repository.ProcessedContractBlock) error {
	if fl.Block == nil {
		return nil
	}

	var isDenylisted func(string) bool
	if s.deny != nil {
		isDenylisted = s.deny.IsDenylisted
	}

	for _, address := range fl.Block.ActiveContracts(isDenylisted) {
		contract, ok := s.registry.Get(address)
		if !ok {
			// Not one of our configured contracts (some other contract's
			// operation happened to land in this block).
			continue
		}

		proc := storageproc.NewProcessor(s.client, s.repo)
		result, err := proc.ProcessBlock(ctx, fl.Block, contract)
		if err != nil {
			return fmt.Errorf("pipeline: processing %s at level %d: %w", address, fl.Level, err)
		}

		block := repository.ProcessedContractBlock{
			Level:         fl.Meta,
			Contract:      address,
			IsOrigination: fl.Block.HasOrigination(address),
			Result:        result,
		}
		select {
		case out <- block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
