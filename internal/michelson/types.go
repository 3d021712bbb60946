// Package michelson parses the two Micheline JSON shapes the indexer
// consumes: a contract's declared storage type into a structural type tree
// (T), and a storage value into a value tree (V). Everything downstream —
// the relational AST builder, the schema compiler, the storage processor —
// operates on these two trees rather than on raw JSON.
package michelson

import "fmt"

// Kind discriminates the variants of T, mirroring the sum type described
// for the type AST: primitives, and the handful of composite shapes a
// Michelson storage type can take.
type Kind int

const (
	KAddress Kind = iota
	KBool
	KBytes
	KInt
	KNat
	KMutez
	KString
	KKeyHash
	KTimestamp
	KUnit
	KStop // lambda placeholder; dropped by design, never materialized
	KOption
	KList
	KPair
	KOr
	KMap
	KBigMap
)

func (k Kind) String() string {
	switch k {
	case KAddress:
		return "address"
	case KBool:
		return "bool"
	case KBytes:
		return "bytes"
	case KInt:
		return "int"
	case KNat:
		return "nat"
	case KMutez:
		return "mutez"
	case KString:
		return "string"
	case KKeyHash:
		return "key_hash"
	case KTimestamp:
		return "timestamp"
	case KUnit:
		return "unit"
	case KStop:
		return "stop"
	case KOption:
		return "option"
	case KList:
		return "list"
	case KPair:
		return "pair"
	case KOr:
		return "or"
	case KMap:
		return "map"
	case KBigMap:
		return "big_map"
	default:
		return "unknown"
	}
}

// IsSimple reports whether k is a SimpleExprTy leaf — the set the schema
// compiler maps directly onto a SQL column type (spec.md §4.3's table).
func (k Kind) IsSimple() bool {
	switch k {
	case KAddress, KBool, KBytes, KInt, KNat, KMutez, KString, KKeyHash, KTimestamp, KUnit, KStop:
		return true
	default:
		return false
	}
}

// T is a node in the structural type tree a contract's storage (or an
// entrypoint's parameter) type compiles to. Composite kinds populate Left
// and/or Right (Pair, Or, Option uses Left only, List/Set use Left as the
// element type, Map/BigMap use Left as key and Right as value); simple
// kinds leave both nil.
type T struct {
	Kind Kind
	Name string // field annotation, stripped of its leading '%'; may be empty

	// Left/Right are the child type nodes for composite kinds. Their
	// meaning depends on Kind:
	//   KPair, KOr: Left, Right are the two branches.
	//   KOption:    Left is the wrapped type; Right is nil.
	//   KList:      Left is the element type; Right is nil. Unique
	//               (originally `set`) is set when Left came from a `set`.
	//   KMap, KBigMap: Left is the key type, Right is the value type.
	Left  *T
	Right *T

	Unique bool // true if this KList node originated from a Michelson `set`
}

func (t *T) String() string {
	if t == nil {
		return "<nil>"
	}
	name := t.Name
	if name == "" {
		name = "-"
	}
	switch t.Kind {
	case KPair, KOr, KMap, KBigMap:
		return fmt.Sprintf("%s(%s)[%s, %s]", t.Kind, name, t.Left, t.Right)
	case KOption, KList:
		return fmt.Sprintf("%s(%s)[%s]", t.Kind, name, t.Left)
	default:
		return fmt.Sprintf("%s(%s)", t.Kind, name)
	}
}
