package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tzindexer/internal/bcd"
	"tzindexer/internal/config"
	"tzindexer/internal/denylist"
	"tzindexer/internal/health"
	"tzindexer/internal/logging"
	"tzindexer/internal/pipeline"
	"tzindexer/internal/repository"
	"tzindexer/internal/rpc"
	"tzindexer/internal/stats"
)

// runIndex is the root command's action: assemble every collaborator from
// cfg, then either bootstrap schemas and exit (--init) or run the pipeline
// until SIGINT/SIGTERM — grounded on the teacher's main.go assembly order
// (config, dependencies, services, signal handling), restructured behind
// cobra instead of a flat func main.
func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return configError(err)
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return configError(err)
	}
	defer log.Sync()

	log.Info("starting tzindexer",
		zap.Strings("contracts", cfg.ContractIDs),
		zap.String("database", config.RedactDatabaseURL(cfg.DatabaseURL)),
		zap.Strings("nodes", cfg.NodeURLs),
	)

	tlsCfg, err := tlsConfigFor(cfg)
	if err != nil {
		return configError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := rpc.New(logging.Component(log, "rpc"), rpc.Config{
		NodeURLs:    cfg.NodeURLs,
		CommRetries: int32(cfg.CommRetries),
		Timeout:     time.Duration(cfg.RequestTimout) * time.Second,
		TLSConfig:   tlsCfg,
	})
	if err != nil {
		return err
	}

	var bcdClient *bcd.Client
	if cfg.BCDURL != "" {
		bcdClient = bcd.New(logging.Component(log, "bcd"), cfg.BCDURL, "main")
	}

	var deny *denylist.List
	if cfg.DenylistPath != "" {
		deny, err = denylist.LoadFile(logging.Component(log, "denylist"), cfg.DenylistPath, cfg.Denylist)
		if err != nil {
			return fmt.Errorf("loading denylist: %w", err)
		}
	} else {
		deny = denylist.New(logging.Component(log, "denylist"), cfg.Denylist)
	}

	repo, err := repository.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureCommonSchema(ctx); err != nil {
		return err
	}

	status := health.NewStatus()
	statsLogger := stats.New(logging.Component(log, "stats"), "tzindexer", 30*time.Second)
	pl := pipeline.New(log, cfg, repo, client, bcdClient, deny, status, statsLogger)

	if cfg.Init {
		return pl.Bootstrap(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { statsLogger.Run(gctx); return nil })
	if cfg.HealthAddr != "" {
		healthSrv := health.NewServer(logging.Component(log, "health"), cfg.HealthAddr, status)
		g.Go(func() error { return healthSrv.Run(gctx) })
	}
	g.Go(func() error { return pl.Run(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// configError tags err so main can map it to spec.md §7's "Configuration
// → exit immediately" (exit code 2) without the caller needing to know
// cobra's own error plumbing.
type cliConfigError struct{ err error }

func (e *cliConfigError) Error() string { return e.err.Error() }
func (e *cliConfigError) Unwrap() error { return e.err }

func configError(err error) error { return &cliConfigError{err: err} }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var cfgErr *cliConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "configuration error:", cfgErr.err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
