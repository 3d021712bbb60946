package chain

import "strings"

// Block is the decoded shape of one node `level_json` response: enough of
// the RPC block body for the processor to enumerate applied operations,
// their storage-after snapshots, and big-map diffs. Everything below the
// operation-result layer stays as raw Micheline JSON text — parsing it
// into a michelson.V is the storage processor's job, not the transport's
// (node responses are schemaless enough that premature typing at this
// layer only throws information away).
type Block struct {
	Hash       string
	Header     BlockHeader
	Operations [][]Operation // indexed [operation_group_number][operation_number]
}

type BlockHeader struct {
	Level       int32
	Predecessor string
	Timestamp   string // RFC3339, as the node sends it
}

type Operation struct {
	Hash     string
	Contents []OperationContent
}

type OperationContent struct {
	Source      *string
	Destination *string
	Parameters  *Params
	Metadata    OperationMetadata
}

// Params is an entrypoint invocation: the entrypoint name plus its raw
// Micheline argument value (absent for default-entrypoint transfers with
// no parameters).
type Params struct {
	Entrypoint string
	Value      []byte
}

type OperationMetadata struct {
	OperationResult          *OperationResult
	InternalOperationResults []InternalOperationResult
}

type OperationResult struct {
	Status              string
	OriginatedContracts []string
	Storage             []byte // raw Micheline JSON; nil if this content left storage untouched
	BigMapDiff           []BigMapDiff
}

type InternalOperationResult struct {
	Source      string
	Destination *string
	Parameters  *Params
	Result      OperationResult
}

// BigMapDiff is one entry of a node's big_map_diff array. Action is one
// of "update", "alloc", "copy", "remove"; the fields populated depend on
// it: Key/Value only for "update" (a nil Value means the key was
// deleted); SourceBigMap/DestinationBigMap only for "copy"; BigMap alone
// for "alloc"/"remove".
type BigMapDiff struct {
	Action            string
	BigMap            *string
	SourceBigMap      *string
	DestinationBigMap *string
	Key               []byte
	Value             []byte
}

// IsContract reports whether address looks like an originated contract
// (KT1-prefixed) rather than an implicit account.
func IsContract(address string) bool {
	return strings.HasPrefix(address, "KT1")
}

// IsContractActive reports whether any applied operation in the block
// touches contract, directly or via an internal operation. isDenylisted
// is injected rather than imported to keep this package free of a
// dependency on the denylist package.
func (b *Block) IsContractActive(contract string, isDenylisted func(string) bool) bool {
	if isDenylisted != nil && isDenylisted(contract) {
		return false
	}
	for _, group := range b.Operations {
		for _, op := range group {
			for _, content := range op.Contents {
				res := content.Metadata.OperationResult
				if res == nil || res.Status != "applied" {
					continue
				}
				if content.Destination != nil && *content.Destination == contract {
					return true
				}
				for _, internal := range content.Metadata.InternalOperationResults {
					if internal.Destination != nil && *internal.Destination == contract {
						return true
					}
				}
			}
		}
	}
	return false
}

// ActiveContracts returns every distinct KT1 address touched by an
// applied operation in the block, directly or via an internal operation
// or an origination, excluding anything isDenylisted reports true for.
func (b *Block) ActiveContracts(isDenylisted func(string) bool) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if !IsContract(addr) || seen[addr] {
			return
		}
		if isDenylisted != nil && isDenylisted(addr) {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, group := range b.Operations {
		for _, op := range group {
			for _, content := range op.Contents {
				res := content.Metadata.OperationResult
				if res == nil || res.Status != "applied" {
					continue
				}
				if content.Destination != nil {
					add(*content.Destination)
				}
				for _, contract := range res.OriginatedContracts {
					add(contract)
				}
				for _, internal := range content.Metadata.InternalOperationResults {
					if internal.Destination != nil {
						add(*internal.Destination)
					}
					for _, contract := range internal.Result.OriginatedContracts {
						add(contract)
					}
				}
			}
		}
	}
	return out
}

// HasOrigination reports whether the block originates contract.
func (b *Block) HasOrigination(contract string) bool {
	for _, group := range b.Operations {
		for _, op := range group {
			for _, content := range op.Contents {
				res := content.Metadata.OperationResult
				if res == nil {
					continue
				}
				for _, c := range res.OriginatedContracts {
					if c == contract {
						return true
					}
				}
				for _, internal := range content.Metadata.InternalOperationResults {
					for _, c := range internal.Result.OriginatedContracts {
						if c == contract {
							return true
						}
					}
				}
			}
		}
	}
	return false
}
