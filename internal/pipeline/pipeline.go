package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tzindexer/internal/bcd"
	"tzindexer/internal/config"
	"tzindexer/internal/denylist"
	"tzindexer/internal/health"
	"tzindexer/internal/logging"
	"tzindexer/internal/repository"
	"tzindexer/internal/rpc"
	"tzindexer/internal/stats"
)

// Pipeline wires the four bounded-channel stages spec.md §4.8/§5
// describes — level source, fetcher pool, processor stage, committer —
// into one errgroup-supervised run, grounded on the teacher's
// internal/ingester.Service.Start (construct collaborators, launch
// stages, propagate the first error through the group's context).
type Pipeline struct {
	log    *zap.Logger
	cfg    config.Config
	repo   *repository.Repository
	client *rpc.Client
	bcd    *bcd.Client // optional
	deny   *denylist.List
	status *health.Status
	stats  *stats.Logger

	registry *ContractRegistry
}

func New(log *zap.Logger, cfg config.Config, repo *repository.Repository, client *rpc.Client, bcdClient *bcd.Client, deny *denylist.List, status *health.Status, statsLogger *stats.Logger) *Pipeline {
	return &Pipeline{
		log:      log,
		cfg:      cfg,
		repo:     repo,
		client:   client,
		bcd:      bcdClient,
		deny:     deny,
		status:   status,
		stats:    statsLogger,
		registry: NewContractRegistry(log, client, repo),
	}
}

// Run bootstraps every configured contract's schema, replays the current
// head level (spec.md §4.8's idempotent replay: a level the process may
// have been indexing when it last exited is deleted and re-ingested
// rather than trusted half-written), then runs the four stages until ctx
// is cancelled or the level source (in explicit-levels mode) drains.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.registry.Bootstrap(ctx, p.cfg.ContractIDs); err != nil {
		return err
	}
	if err := p.replayHead(ctx); err != nil {
		return err
	}

	levels := make(chan int32, p.cfg.FetcherPool)
	fetched := make(chan fetchedLevel, p.cfg.FetcherPool)
	processed := make(chan repository.ProcessedContractBlock, p.cfg.BatchSize)

	source := NewLevelSource(logging.Component(p.log, "levelsource"), p.repo, p.client, p.bcd, p.cfg)
	fetcher := NewFetcherPool(logging.Component(p.log, "fetcher"), p.client, p.cfg.FetcherPool)
	stage := NewStage(logging.Component(p.log, "processor"), p.registry, p.client, p.repo, p.deny)
	committer := NewCommitter(logging.Component(p.log, "committer"), p.repo, p.status, p.stats, p.cfg.BatchSize)

	contracts := p.registry.Addresses()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return source.Run(gctx, contracts, levels) })
	g.Go(func() error { return fetcher.Run(gctx, levels, fetched) })
	g.Go(func() error { return stage.Run(gctx, fetched, processed) })
	g.Go(func() error { return committer.Run(gctx, processed) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Bootstrap compiles and registers every configured contract's schema
// without running any pipeline stage — spec.md §6's --init flag.
func (p *Pipeline) Bootstrap(ctx context.Context) error {
	return p.registry.Bootstrap(ctx, p.cfg.ContractIDs)
}

func (p *Pipeline) replayHead(ctx context.Context) error {
	head, ok, err := p.repo.Head(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: reading head for replay: %w", err)
	}
	if !ok {
		return nil
	}
	p.log.Info("replaying head level", zap.Int32("level", head.Level))
	if err := p.repo.DeleteLevel(ctx, head.Level); err != nil {
		return fmt.Errorf("pipeline: replaying level %d: %w", head.Level, err)
	}
	return nil
}
