package storageproc

import "context"

// BigmapKV is one live entry of a big-map at a given level: the key's
// canonical hash, its raw Micheline JSON, and its raw Micheline JSON
// value.
type BigmapKV struct {
	KeyHash string
	Key     string
	Value   string
}

// BigmapKeysGetter is the external collaborator spec.md §4.7 requires for
// deep-copy materialization: given a big-map id and a level, return every
// entry live in it at that level, deduplicated by key hash.
type BigmapKeysGetter interface {
	BigmapKeys(ctx context.Context, level int32, bigmap int32) ([]BigmapKV, error)
}

// StorageGetter fetches a contract's current storage directly. Only
// needed for an origination whose own operation result carries no
// storage value of its own.
type StorageGetter interface {
	ContractStorage(ctx context.Context, contract string, level int32) ([]byte, error)
}
