package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tzindexer/internal/chain"
	"tzindexer/internal/rpc"
)

// fetchedLevel is one level's fetched block body, paired with the level
// itself so downstream stages can report progress even when Block is nil.
type fetchedLevel struct {
	Level int32
	Meta  chain.LevelMeta
	Block *chain.Block
}

// FetcherPool fetches block bodies for a stream of levels concurrently in
// fixed-size chunks, emitting each chunk back in ascending level order
// before pulling the next one — spec.md §4.8 step 1's fetcher pool, sized
// by config.Config.FetcherPool. Grounded directly on the teacher's
// internal/ingester.Service.fetchBatchParallel/saveBatch (fan out a
// bounded batch of heights concurrently, then sort before handing
// downstream), reusing that same shape for a streaming level source
// instead of a fixed height range, with golang.org/x/sync/errgroup in
// place of the teacher's hand-rolled WaitGroup+semaphore.
type FetcherPool struct {
	log    *zap.Logger
	client *rpc.Client
	chunk  int
}

func NewFetcherPool(log *zap.Logger, client *rpc.Client, workers int) *FetcherPool {
	if workers < 1 {
		workers = 1
	}
	return &FetcherPool{log: log, client: client, chunk: workers}
}

// Run reads levels from in and writes the corresponding fetchedLevel to
// out in the same ascending order, closing out once in is drained or ctx
// is cancelled.
func (f *FetcherPool) Run(ctx context.Context, in <-chan int32, out chan<- fetchedLevel) error {
	defer close(out)

	for {
		batch, ok := f.readChunk(ctx, in)
		if len(batch) > 0 {
			results, err := f.fetchChunk(ctx, batch)
			if err != nil {
				return err
			}
			for _, res := range results {
				select {
				case out <- res:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if !ok {
			return nil
		}
	}
}

// readChunk collects up to f.chunk levels from in, returning ok=false
// once in has closed (the final, possibly short or empty, chunk is still
// returned alongside ok=false when in closes mid-read).
func (f *FetcherPool) readChunk(ctx context.Context, in <-chan int32) ([]int32, bool) {
	batch := make([]int32, 0, f.chunk)
	for len(batch) < f.chunk {
		select {
		case level, ok := <-in:
			if !ok {
				return batch, false
			}
			batch = append(batch, level)
		case <-ctx.Done():
			return batch, false
		}
	}
	return batch, true
}

func (f *FetcherPool) fetchChunk(ctx context.Context, levels []int32) ([]fetchedLevel, error) {
	// workerID exists purely for structured-log correlation across a
	// chunk's concurrent fetches; it never leaves this function.
	workerID := uuid.NewString()
	results := make([]fetchedLevel, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	for i, level := range levels {
		i, level := i, level
		g.Go(func() error {
			if f.log != nil {
				f.log.Debug("fetching level", zap.String("worker", workerID), zap.Int32("level", level))
			}
			meta, block, err := f.client.LevelJSON(gctx, level)
			if err != nil {
				return fmt.Errorf("pipeline: fetching level %d: %w", level, err)
			}
			results[i] = fetchedLevel{Level: level, Meta: meta, Block: block}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
