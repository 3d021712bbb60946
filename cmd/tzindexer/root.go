// Package main is the tzindexer CLI entrypoint: spec.md §6's flag surface
// (--contract-id/CONTRACT_ID, --database-url/DATABASE_URL,
// --node-url/NODE_URL, --ssl, --ca-cert, --levels, --init) plus the
// `generate-sql` dry-run subcommand, grounded on
// original_source/src/cli.rs/main.rs and built with github.com/spf13/cobra
// the way the pack's orbas1-Synnergy cmd/synnergy/main.go and
// AKJUS-bsc-erigon structure their command trees.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tzindexer/internal/config"
)

var cfgFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tzindexer",
		Short:         "Index Tezos smart contract storage into Postgres",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runIndex,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to an optional YAML config file")
	flags.StringSlice("contract-id", nil, "contract address to index (repeatable, or comma-separated)")
	flags.String("database-url", "", "Postgres connection string")
	flags.StringSlice("node-url", nil, "Tezos node RPC base URL (repeatable; round-robin pool)")
	flags.String("bcd-url", "", "better-call.dev API base URL (optional; level discovery waits for the node to reach its head, levels are not read from it)")
	flags.Bool("ssl", false, "require TLS when talking to node URLs")
	flags.String("ca-cert", "", "path to a PEM CA certificate trusted for node TLS connections")
	flags.String("levels", "", "explicit level ranges to index, e.g. 1,5-10,20 (skips live tail)")
	flags.Bool("init", false, "create configured contracts' schemas, then exit")
	flags.Int("batch-size", 0, "processed contract blocks buffered before a commit (0 keeps the configured default)")
	flags.Int("fetcher-pool", 0, "concurrent block fetchers (0 keeps the configured default)")
	flags.Int("comm-retries", 0, "RPC retry attempts before failing a level (<0 retries forever, 0 disables retries; unset keeps the configured default)")
	flags.String("log-level", "", "debug, info, warn, or error")
	flags.Bool("log-development", false, "human-readable console logging instead of JSON")
	flags.String("health-addr", "", "liveness HTTP listen address")
	flags.String("denylist-path", "", "path to a newline-delimited denylisted-address file")

	root.AddCommand(newGenerateSQLCommand())
	return root
}

// loadConfig merges, in increasing precedence, config.Defaults(), an
// optional --config YAML file, environment variables, then this command's
// flags — spec.md §6's "Flags (all overridable by env)" read the other
// direction (flags are the final override, since an operator invoking the
// CLI directly expects the flag they typed to win).
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Defaults()

	cfg, err := config.LoadFile(cfgFile, cfg)
	if err != nil {
		return config.Config{}, err
	}
	cfg = config.ApplyEnv(cfg)

	flags := cmd.Flags()
	if v, _ := flags.GetStringSlice("contract-id"); len(v) > 0 {
		cfg.ContractIDs = v
	}
	if v, _ := flags.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v, _ := flags.GetStringSlice("node-url"); len(v) > 0 {
		cfg.NodeURLs = v
	}
	if v, _ := flags.GetString("bcd-url"); v != "" {
		cfg.BCDURL = v
	}
	if flags.Changed("ssl") {
		cfg.SSL, _ = flags.GetBool("ssl")
	}
	if v, _ := flags.GetString("ca-cert"); v != "" {
		cfg.CACert = v
	}
	if v, _ := flags.GetString("levels"); v != "" {
		levels, err := config.ParseLevels(v)
		if err != nil {
			return config.Config{}, fmt.Errorf("parsing --levels: %w", err)
		}
		cfg.Levels = levels
	}
	if flags.Changed("init") {
		cfg.Init, _ = flags.GetBool("init")
	}
	if v, _ := flags.GetInt("batch-size"); v > 0 {
		cfg.BatchSize = v
	}
	if v, _ := flags.GetInt("fetcher-pool"); v > 0 {
		cfg.FetcherPool = v
	}
	if flags.Changed("comm-retries") {
		cfg.CommRetries, _ = flags.GetInt("comm-retries")
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if flags.Changed("log-development") {
		cfg.LogDevelopment, _ = flags.GetBool("log-development")
	}
	if v, _ := flags.GetString("health-addr"); v != "" {
		cfg.HealthAddr = v
	}
	if v, _ := flags.GetString("denylist-path"); v != "" {
		cfg.DenylistPath = v
	}

	return cfg, nil
}

// tlsConfigFor builds the *tls.Config rpc.Config.TLSConfig expects from
// --ssl/--ca-cert, or nil if plain HTTP node URLs were configured.
func tlsConfigFor(cfg config.Config) (*tls.Config, error) {
	if !cfg.SSL && cfg.CACert == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("reading --ca-cert %s: %w", cfg.CACert, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("--ca-cert %s contains no usable certificates", cfg.CACert)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}
