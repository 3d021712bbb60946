// Package chain holds the small set of data types shared across the
// indexer's core components (the type/value trees in internal/michelson,
// the schema in internal/schema, and the big-map normalizer and storage
// processor) so none of those packages need to import each other just to
// agree on what a TxContext or an Insert looks like.
package chain

import "fmt"

// TxContext addresses a single point inside a block's operation tree at
// which a contract was invoked. Two TxContexts with every field but ID
// equal are the same context; ID is assigned only once the context is
// first interned within a block, which is why equality and ordering
// deliberately ignore it.
type TxContext struct {
	Level                 int32
	Contract              string
	OperationHash         string
	OperationGroupNumber  int32
	OperationNumber       int32
	ContentNumber         int32
	InternalNumber        *int32
	Source                string
	Destination           string
	Entrypoint            string
	ID                    int64 // 0 until interned
}

// TxKey is the comparable identity TxContext equality and map-keying use —
// every field except ID.
type TxKey struct {
	Level          int32
	Contract       string
	OperationHash  string
	GroupNumber    int32
	OpNumber       int32
	ContentNumber  int32
	InternalNumber int32
	HasInternal    bool
	Source         string
	Destination    string
	Entrypoint     string
}

// Key returns the comparable identity of tx (excluding ID), suitable for
// use as a map key when interning contexts.
func (tx TxContext) Key() TxKey {
	k := TxKey{
		Level:         tx.Level,
		Contract:      tx.Contract,
		OperationHash: tx.OperationHash,
		GroupNumber:   tx.OperationGroupNumber,
		OpNumber:      tx.OperationNumber,
		ContentNumber: tx.ContentNumber,
		Source:        tx.Source,
		Destination:   tx.Destination,
		Entrypoint:    tx.Entrypoint,
	}
	if tx.InternalNumber != nil {
		k.InternalNumber = *tx.InternalNumber
		k.HasInternal = true
	}
	return k
}

// Less implements the lexicographic ordering spec.md §3 defines:
// (level, operation_group_number, operation_number, content_number,
// internal_number).
func (tx TxContext) Less(other TxContext) bool {
	if tx.Level != other.Level {
		return tx.Level < other.Level
	}
	if tx.OperationGroupNumber != other.OperationGroupNumber {
		return tx.OperationGroupNumber < other.OperationGroupNumber
	}
	if tx.OperationNumber != other.OperationNumber {
		return tx.OperationNumber < other.OperationNumber
	}
	if tx.ContentNumber != other.ContentNumber {
		return tx.ContentNumber < other.ContentNumber
	}
	a, b := int32(-1), int32(-1)
	if tx.InternalNumber != nil {
		a = *tx.InternalNumber
	}
	if other.InternalNumber != nil {
		b = *other.InternalNumber
	}
	return a < b
}

func (tx TxContext) String() string {
	internal := "-"
	if tx.InternalNumber != nil {
		internal = fmt.Sprintf("%d", *tx.InternalNumber)
	}
	return fmt.Sprintf("tx(level=%d,group=%d,op=%d,content=%d,internal=%s)",
		tx.Level, tx.OperationGroupNumber, tx.OperationNumber, tx.ContentNumber, internal)
}

// LevelMeta is the block-level metadata the inserter persists into the
// levels table.
type LevelMeta struct {
	Level    int32
	Hash     string
	PrevHash string
	BakedAt  *int64 // unix seconds; nil if unknown
}

// Value is a column value ready for SQL binding: Null, or exactly one of
// the typed fields (Str, Int, or Bool with IsBool set), chosen to match
// the column's declared SimpleExprTy.
type Value struct {
	Null    bool
	Str     string
	Int     *bigIntAlias
	Bool    bool
	IsBool  bool
}

// bigIntAlias avoids importing math/big into every caller that only
// needs to know Value exists; the concrete type is defined in value.go.
type bigIntAlias = BigInt

// Insert is a single emitted row: a synthetic row id, its parent's row id
// (nil only for the root table), and a column-name → Value map built up
// by repeated sql_add_cell calls as the storage processor co-walks a
// value tree.
type Insert struct {
	Table   string
	ID      int64
	FKID    *int64
	Columns map[string]Value
}

// Merge unions col into i.Columns, with col's entries winning on
// conflict — the "two inserts with the same (table, id) merge by column
// union, last write wins per column" invariant.
func (i *Insert) Merge(col map[string]Value) {
	if i.Columns == nil {
		i.Columns = make(map[string]Value)
	}
	for k, v := range col {
		i.Columns[k] = v
	}
}
