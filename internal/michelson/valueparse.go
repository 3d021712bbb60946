package michelson

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/valyala/fastjson"
)

// ParseValue compiles the Micheline JSON for a storage or parameter value
// into a V tree. A bare top-level JSON array is right-folded into nested
// Pairs exactly like an n-ary `Pair` prim's args.
func ParseValue(js *fastjson.Value) (*V, error) {
	if js == nil {
		return nil, fmt.Errorf("unexpected storage value: nil node")
	}

	if arr, err := js.Array(); err == nil {
		if len(arr) == 0 {
			return &V{Kind: VList, Elems: nil}, nil
		}
		return pairFoldValues(arr)
	}

	if leaf := js.Get("int"); leaf != nil {
		n := new(big.Int)
		if _, ok := n.SetString(string(leaf.GetStringBytes()), 10); !ok {
			return nil, fmt.Errorf("unexpected storage value: malformed int %q", leaf.GetStringBytes())
		}
		return &V{Kind: VInt, Int: n}, nil
	}
	if leaf := js.Get("bytes"); leaf != nil {
		return &V{Kind: VBytes, Str: string(leaf.GetStringBytes())}, nil
	}
	if leaf := js.Get("string"); leaf != nil {
		return &V{Kind: VString, Str: string(leaf.GetStringBytes())}, nil
	}
	if leaf := js.Get("address"); leaf != nil {
		return &V{Kind: VAddress, Str: string(leaf.GetStringBytes())}, nil
	}

	primV := js.Get("prim")
	if primV == nil {
		return nil, fmt.Errorf("unexpected storage value: no recognizable leaf or prim")
	}
	prim := string(primV.GetStringBytes())
	args := js.GetArray("args")

	switch prim {
	case "Pair":
		if len(args) < 2 {
			return nil, fmt.Errorf("unexpected storage value: Pair takes at least 2 args, got %d", len(args))
		}
		return pairFoldValues(args)
	case "Elt":
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected storage value: Elt takes exactly 2 args, got %d", len(args))
		}
		k, err := ParseValue(args[0])
		if err != nil {
			return nil, err
		}
		v, err := ParseValue(args[1])
		if err != nil {
			return nil, err
		}
		return &V{Kind: VElt, Left: k, Right: v}, nil
	case "Left":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage value: Left takes exactly 1 arg, got %d", len(args))
		}
		inner, err := ParseValue(args[0])
		if err != nil {
			return nil, err
		}
		return &V{Kind: VLeft, Left: inner}, nil
	case "Right":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage value: Right takes exactly 1 arg, got %d", len(args))
		}
		inner, err := ParseValue(args[0])
		if err != nil {
			return nil, err
		}
		return &V{Kind: VRight, Right: inner}, nil
	case "Some":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage value: Some takes exactly 1 arg, got %d", len(args))
		}
		// Some(x) carries no variant of its own in V: the co-walk against
		// an Option RA node distinguishes None from "anything else", so
		// the wrapped value is surfaced directly.
		return ParseValue(args[0])
	case "None":
		return &V{Kind: VNone}, nil
	case "True":
		return &V{Kind: VBool, Bool: true}, nil
	case "False":
		return &V{Kind: VBool, Bool: false}, nil
	case "Unit":
		return &V{Kind: VUnit}, nil
	default:
		// PUSH and any other unrecognized prim become None: a deliberate
		// design choice that tolerates parameter payloads that don't
		// fully match what was declared.
		if strings.EqualFold(prim, "PUSH") {
			return &V{Kind: VNone}, nil
		}
		return &V{Kind: VNone}, nil
	}
}

// pairFoldValues right-folds >2 values into nested Pairs, matching the
// n-ary Pair prim handling: Pair(a, Pair(b, Pair(c, d))).
func pairFoldValues(args []*fastjson.Value) (*V, error) {
	if len(args) == 1 {
		return ParseValue(args[0])
	}
	left, err := ParseValue(args[0])
	if err != nil {
		return nil, err
	}
	right, err := pairFoldValues(args[1:])
	if err != nil {
		return nil, err
	}
	return &V{Kind: VPair, Left: left, Right: right}, nil
}
