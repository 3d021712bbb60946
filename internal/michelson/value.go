package michelson

import "math/big"

// VKind discriminates the variants of V, the parsed value tree.
type VKind int

const (
	VAddress VKind = iota
	VBytes
	VString
	VInt
	VNat
	VMutez
	VTimestamp
	VBool
	VKeyHash
	VUnit
	VNone
	VLeft
	VRight
	VPair
	VElt
	VList
)

// V is a parsed Micheline value. Composite kinds populate Left/Right/Elems;
// scalar kinds populate exactly one of Str/Int/Bool depending on Kind.
type V struct {
	Kind VKind

	Str  string
	Int  *big.Int
	Bool bool

	Left  *V // Left/Right branch payload, or Elt's key / Pair's first
	Right *V // Elt's value / Pair's second

	Elems []*V // KList elements, in source order
}

// UnfoldList right-combs a KList into nested Pairs the way an n-ary
// Michelson list literal is folded: zero elements become None, one
// element is itself, two or more become Pair(first, UnfoldList(rest)).
// Every other kind is returned unchanged.
func (v *V) UnfoldList() *V {
	if v.Kind != VList {
		return v
	}
	switch len(v.Elems) {
	case 0:
		return &V{Kind: VNone}
	case 1:
		return v.Elems[0]
	default:
		rest := &V{Kind: VList, Elems: v.Elems[1:]}
		return &V{Kind: VPair, Left: v.Elems[0], Right: rest.UnfoldList()}
	}
}

// String is the canonical text form used by round-trip tests: scalar kinds
// print their payload, composites recurse. It is not meant to match any
// particular wire format, only to be stable and uniquely re-parseable by
// the value tree's own constructors for testing purposes.
func (v *V) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case VAddress, VBytes, VString, VTimestamp, VKeyHash:
		return v.Str
	case VInt, VNat, VMutez:
		return v.Int.String()
	case VBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case VUnit:
		return "Unit"
	case VNone:
		return "None"
	case VLeft:
		return "Left(" + v.Left.String() + ")"
	case VRight:
		return "Right(" + v.Right.String() + ")"
	case VPair:
		return "Pair(" + v.Left.String() + ", " + v.Right.String() + ")"
	case VElt:
		return "Elt(" + v.Left.String() + ", " + v.Right.String() + ")"
	case VList:
		s := "["
		for i, e := range v.Elems {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	default:
		return "<unknown>"
	}
}
