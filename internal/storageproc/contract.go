package storageproc

import "tzindexer/internal/relational"

// Contract is the compiled-once-per-contract input the storage processor
// co-walks against every observed value: the storage type's RA, plus one
// RA per entrypoint that carries parameters worth indexing (spec.md
// §4.6's "entry.<entrypoint>" root tables).
type Contract struct {
	Address        string
	StorageAST     *relational.RA
	EntrypointASTs map[string]*relational.RA
}
