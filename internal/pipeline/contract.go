package pipeline

import (
	"context"
	"fmt"

	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
	"tzindexer/internal/rpc"
	"tzindexer/internal/storageproc"
)

// CompileContract fetches address's declared storage type and every
// entrypoint's parameter type from client and compiles each into its own
// relational AST, producing the storageproc.Contract the processor
// co-walks observed values against — spec.md §4.8 step 3's "per contract
// active in the block: run 4.6" and its "entry.<entrypoint>" root table
// note (spec.md §4.6 step: "co-walk params with that AST into rows under
// a synthetic root table entry.<entrypoint>"). One Indexes counter is
// shared across storage and every entrypoint so anonymous names stay
// unique within one contract's whole compiled schema, matching
// internal/relational's single shared name-space design.
func CompileContract(ctx context.Context, client *rpc.Client, address string) (*storageproc.Contract, error) {
	idx := relational.NewIndexes()

	storageJS, err := client.ContractStorageDefinition(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetching storage type for %s: %w", address, err)
	}
	storageT, err := michelson.ParseType(storageJS)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing storage type for %s: %w", address, err)
	}
	storageRA, err := relational.Build(relational.NewContext(), storageT, idx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: building storage AST for %s: %w", address, err)
	}

	entrypoints, err := client.ContractEntrypoints(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetching entrypoints for %s: %w", address, err)
	}
	entrypointASTs := make(map[string]*relational.RA, len(entrypoints))
	for name, js := range entrypoints {
		t, err := michelson.ParseType(js)
		if err != nil {
			return nil, fmt.Errorf("pipeline: parsing entrypoint %q type for %s: %w", name, address, err)
		}
		ra, err := relational.Build(relational.Context{TableName: "entry." + name}, t, idx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: building entrypoint %q AST for %s: %w", name, address, err)
		}
		entrypointASTs[name] = ra
	}

	return &storageproc.Contract{
		Address:        address,
		StorageAST:     storageRA,
		EntrypointASTs: entrypointASTs,
	}, nil
}

// SchemaRoots flattens contract's compiled ASTs into the map
// repository.EnsureContractSchema and schema.Compile expect: one root per
// generated table tree, keyed by its starting table name.
func SchemaRoots(contract *storageproc.Contract) map[string]*relational.RA {
	roots := make(map[string]*relational.RA, 1+len(contract.EntrypointASTs))
	roots["storage"] = contract.StorageAST
	for name, ra := range contract.EntrypointASTs {
		roots["entry."+name] = ra
	}
	return roots
}
