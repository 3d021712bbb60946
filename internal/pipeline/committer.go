package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tzindexer/internal/health"
	"tzindexer/internal/repository"
	"tzindexer/internal/stats"
)

// Committer accumulates repository.ProcessedContractBlocks until
// config.Config.BatchSize is reached (or its input channel closes, or the
// flush ticker fires), then commits them as one repository.CommitBatch transaction —
// spec.md §4.8 step 4 ("batch committer... atomic id-offsetting commit"),
// grounded on the teacher's internal/ingester service.go saveBatch/
// fetchBatchParallel batching shape, generalized from a fixed height range
// to an open-ended channel of arbitrary size by flushing on a fixed-interval
// ticker as well as on the size threshold (matching CheckpointCommitter's
// own ticker-driven cadence).
type Committer struct {
	log       *zap.Logger
	repo      *repository.Repository
	status    *health.Status
	stats     *stats.Logger
	batchSize int
	flushEvery time.Duration
}

func NewCommitter(log *zap.Logger, repo *repository.Repository, status *health.Status, statsLogger *stats.Logger, batchSize int) *Committer {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Committer{
		log:        log,
		repo:       repo,
		status:     status,
		stats:      statsLogger,
		batchSize:  batchSize,
		flushEvery: 2 * time.Second,
	}
}

// Run drains in, committing every batchSize blocks and flushing any
// leftover partial batch on every flushEvery tick (incoming blocks do not
// reset the ticker) and when in closes.
func (c *Committer) Run(ctx context.Context, in <-chan repository.ProcessedContractBlock) error {
	pending := make([]repository.ProcessedContractBlock, 0, c.batchSize)
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batchID := uuid.NewString()
		if err := c.repo.CommitBatch(ctx, pending); err != nil {
			return err
		}
		for _, b := range pending {
			c.status.SetLevel(b.Contract, b.Level.Level)
		}
		c.stats.Add("blocks_committed", int64(len(pending)))
		c.log.Debug("committed batch", zap.String("batch_id", batchID), zap.Int("count", len(pending)))
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case b, ok := <-in:
			if !ok {
				return flush()
			}
			pending = append(pending, b)
			if len(pending) >= c.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
