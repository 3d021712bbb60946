package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tzindexer/internal/logging"
	"tzindexer/internal/pipeline"
	"tzindexer/internal/rpc"
	"tzindexer/internal/schema"
)

// newGenerateSQLCommand is the dry-run schema dump spec.md §6 names and
// SPEC_FULL.md's supplemented-features section recovers from
// original_source/src/cli.rs/highlevel.rs: compile every --contract-id's
// storage/entrypoint ASTs, print the DDL that would create its schema, and
// exit without touching the database.
func newGenerateSQLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-sql",
		Short: "Print the DDL for configured contracts' schemas without touching the database",
		RunE:  runGenerateSQL,
	}
}

func runGenerateSQL(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return configError(err)
	}
	if len(cfg.ContractIDs) == 0 {
		return configError(fmt.Errorf("at least one contract id is required (--contract-id or CONTRACT_ID)"))
	}
	if len(cfg.NodeURLs) == 0 {
		return configError(fmt.Errorf("at least one node URL is required (--node-url or NODE_URL)"))
	}

	log := logging.Nop()
	tlsCfg, err := tlsConfigFor(cfg)
	if err != nil {
		return configError(err)
	}
	client, err := rpc.New(log, rpc.Config{NodeURLs: cfg.NodeURLs, TLSConfig: tlsCfg})
	if err != nil {
		return err
	}

	fmt.Println(schema.CommonTablesDDL())

	ctx := cmd.Context()
	for _, address := range cfg.ContractIDs {
		contract, err := pipeline.CompileContract(ctx, client, address)
		if err != nil {
			return fmt.Errorf("compiling %s: %w", address, err)
		}
		sch, err := schema.Compile(pipeline.SchemaRoots(contract))
		if err != nil {
			return fmt.Errorf("compiling schema for %s: %w", address, err)
		}
		ddl, err := schema.SchemaDDL(address, sch)
		if err != nil {
			return fmt.Errorf("generating DDL for %s: %w", address, err)
		}
		fmt.Println(ddl)
	}
	return nil
}
