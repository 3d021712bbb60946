package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"tzindexer/internal/bcd"
	"tzindexer/internal/config"
	"tzindexer/internal/repository"
	"tzindexer/internal/rpc"
)

// LevelSource produces the ordered sequence of levels the fetcher pool
// consumes: spec.md §4.8 step 1's "levels source", grounded on
// original_source/src/main.rs's bootstrap (explicit --levels short-circuits
// everything else), src/sql/db.rs's get_missing_levels (historical gap
// backfill, oldest first) and the teacher's internal/ingester
// network_poller.go ticker-driven polling loop (the live tail).
type LevelSource struct {
	log    *zap.Logger
	repo   *repository.Repository
	client *rpc.Client
	bcd    *bcd.Client // optional; nil disables better-call.dev-assisted discovery

	explicit     []config.LevelRange
	pollInterval time.Duration
}

func NewLevelSource(log *zap.Logger, repo *repository.Repository, client *rpc.Client, bcdClient *bcd.Client, cfg config.Config) *LevelSource {
	return &LevelSource{
		log:          log,
		repo:         repo,
		client:       client,
		bcd:          bcdClient,
		explicit:     cfg.Levels,
		pollInterval: 5 * time.Second,
	}
}

// Run emits levels onto out in ascending order and closes out when done.
// With explicit levels configured it emits exactly those and returns.
// Otherwise it backfills every gap below the current chain head for
// contracts, then polls the head indefinitely, emitting each newly baked
// level as it appears.
func (s *LevelSource) Run(ctx context.Context, contracts []string, out chan<- int32) error {
	defer close(out)

	if len(s.explicit) > 0 {
		return s.runExplicit(ctx, out)
	}
	return s.runDiscovery(ctx, contracts, out)
}

func (s *LevelSource) runExplicit(ctx context.Context, out chan<- int32) error {
	var levels []int32
	seen := make(map[int32]bool)
	for _, r := range s.explicit {
		for l := r.Start; l <= r.End; l++ {
			level := int32(l)
			if !seen[level] {
				seen[level] = true
				levels = append(levels, level)
			}
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	for _, level := range levels {
		select {
		case out <- level:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *LevelSource) runDiscovery(ctx context.Context, contracts []string, out chan<- int32) error {
	head, err := s.client.Head(ctx)
	if err != nil {
		return err
	}

	if s.bcd != nil {
		if err := s.waitForBCDCatchUp(ctx, head.Level); err != nil {
			return err
		}
	}

	missing, err := s.repo.MissingLevels(ctx, contracts, head.Level)
	if err != nil {
		return err
	}
	s.log.Info("backfilling missing levels", zap.Int("count", len(missing)), zap.Int32("head", head.Level))
	for _, level := range missing {
		select {
		case out <- level:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return s.tailLiveLevels(ctx, head.Level, out)
}

// waitForBCDCatchUp blocks until the node's own head reaches better-call.dev's
// reported head, the precondition spec.md §6 describes for using BCD as a
// discovery hint rather than risking it point past levels the node itself
// cannot yet serve.
func (s *LevelSource) waitForBCDCatchUp(ctx context.Context, nodeHead int32) error {
	bcdHead, err := s.bcd.Head(ctx)
	if err != nil {
		s.log.Warn("better-call.dev head check failed, skipping BCD-assisted discovery", zap.Error(err))
		return nil
	}
	for nodeHead < bcdHead {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
		head, err := s.client.Head(ctx)
		if err != nil {
			return err
		}
		nodeHead = head.Level
	}
	return nil
}

// tailLiveLevels polls the node head on an interval, emitting every level
// from lastEmitted+1 up to the newly observed head each time it advances.
func (s *LevelSource) tailLiveLevels(ctx context.Context, lastEmitted int32, out chan<- int32) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			head, err := s.client.Head(ctx)
			if err != nil {
				s.log.Warn("head poll failed, retrying", zap.Error(err))
				continue
			}
			for level := lastEmitted + 1; level <= head.Level; level++ {
				select {
				case out <- level:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if head.Level > lastEmitted {
				lastEmitted = head.Level
			}
		}
	}
}
