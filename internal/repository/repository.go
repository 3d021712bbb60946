// Package repository is the Postgres persistence layer: schema bootstrap,
// contract registration, and the atomic batch-commit/id-offsetting
// machinery spec.md §4.8 describes, grounded on the teacher's
// internal/repository/postgres.go (pgxpool construction, transactional
// SaveBatch) and original_source/src/sql/db.rs and src/sql/inserter.rs
// (the exact offset-and-commit algorithm this package reproduces).
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tzindexer/internal/config"
	"tzindexer/internal/relational"
	"tzindexer/internal/schema"
	"tzindexer/internal/storageproc"
)

// Repository owns the connection pool and every persisted-state
// operation: schema bootstrap, contract bookkeeping, and batch commits.
type Repository struct {
	log  *zap.Logger
	pool *pgxpool.Pool
}

// New parses cfg.DatabaseURL, applies the pool-size knobs spec.md §6
// exposes, and connects — grounded on the teacher's NewRepository.
func New(ctx context.Context, log *zap.Logger, cfg config.Config) (*Repository, error) {
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: parsing database url: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		pgCfg.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		pgCfg.MinConns = int32(cfg.DBMaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("repository: connecting: %w", err)
	}
	return &Repository{log: log, pool: pool}, nil
}

// Close releases the pool. Safe to call once, on shutdown.
func (r *Repository) Close() {
	r.pool.Close()
}

// EnsureCommonSchema creates the shared tables every contract's data
// lands in alongside (levels, contracts, tx_contexts, ...). Idempotent:
// every table is created with `CREATE TABLE IF NOT EXISTS`, and max_id's
// single row is inserted only while that table is empty.
func (r *Repository) EnsureCommonSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema.CommonTablesDDL()); err != nil {
		return fmt.Errorf("repository: creating common schema: %w", err)
	}
	return nil
}

// ContractSchemaExists reports whether name already has a row in
// contracts — the signal that its dedicated schema and tables were
// already created by a previous run.
func (r *Repository) ContractSchemaExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contracts WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: checking contract schema for %s: %w", name, err)
	}
	return exists, nil
}

// EnsureContractSchema compiles roots (the contract's storage and
// entrypoint-parameter relational ASTs) into a Schema, creates its
// dedicated Postgres schema and tables if they don't exist yet, and
// registers (name, address) in the shared contracts table — grounded on
// original_source/src/sql/db.rs's create_contract_schema.
func (r *Repository) EnsureContractSchema(ctx context.Context, name, address string, roots map[string]*relational.RA) error {
	exists, err := r.ContractSchemaExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	s, err := schema.Compile(roots)
	if err != nil {
		return fmt.Errorf("repository: compiling schema for %s: %w", name, err)
	}
	ddl, err := schema.SchemaDDL(name, s)
	if err != nil {
		return fmt.Errorf("repository: generating DDL for %s: %w", name, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: beginning schema tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO contracts (name, address) VALUES ($1, $2)`, name, address); err != nil {
		return fmt.Errorf("repository: registering contract %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("repository: creating schema for %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: committing schema for %s: %w", name, err)
	}
	r.log.Info("created contract schema", zap.String("contract", name), zap.String("address", address))
	return nil
}

// ContractAddress returns the registered address for a known contract
// name, for callers (cmd/tzindexer) that accept a bare contract name and
// need the address to talk to the node.
func (r *Repository) ContractAddress(ctx context.Context, name string) (string, error) {
	var address string
	err := r.pool.QueryRow(ctx, `SELECT address FROM contracts WHERE name = $1`, name).Scan(&address)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("repository: contract %s is not registered", name)
	}
	if err != nil {
		return "", fmt.Errorf("repository: looking up contract %s: %w", name, err)
	}
	return address, nil
}

// BigmapKeys implements storageproc.BigmapKeysGetter by reading back
// every keyhash/key/value triple this contract's processing has
// persisted for bigmapID as of level — the only source of truth for a
// deep-copy's source entries once they cross a batch boundary (an
// in-memory Processor only ever sees one run's own diffs).
func (r *Repository) BigmapKeys(ctx context.Context, level int32, bigmapID int32) ([]storageproc.BigmapKV, error) {
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT ON (keyhash) keyhash, key, value
FROM bigmap_keyhashes bk
JOIN tx_contexts tc ON tc.id = bk.tx_context_id
WHERE bk.bigmap_id = $1 AND tc.level <= $2
ORDER BY keyhash, bk.tx_context_id DESC
`, bigmapID, level)
	if err != nil {
		return nil, fmt.Errorf("repository: reading bigmap %d keys: %w", bigmapID, err)
	}
	defer rows.Close()

	var out []storageproc.BigmapKV
	for rows.Next() {
		var kv storageproc.BigmapKV
		var value *string
		if err := rows.Scan(&kv.KeyHash, &kv.Key, &value); err != nil {
			return nil, fmt.Errorf("repository: scanning bigmap %d key: %w", bigmapID, err)
		}
		if value != nil {
			kv.Value = *value
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}
