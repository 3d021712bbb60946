package michelson

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
)

// ParseType compiles the Micheline JSON for a contract's storage (or
// entrypoint parameter) type into a T tree. The top level and every nested
// node follow the same `{prim, args?, annots?}` shape.
func ParseType(js *fastjson.Value) (*T, error) {
	if js == nil {
		return nil, fmt.Errorf("unexpected storage type: nil node")
	}
	if arr, err := js.Array(); err == nil {
		// A bare JSON array at this position is not itself a `{prim:...}`
		// node; this only happens for malformed type definitions.
		if len(arr) == 0 {
			return nil, fmt.Errorf("unexpected storage type: empty array")
		}
		return nil, fmt.Errorf("unexpected storage type: bare array, expected prim node")
	}

	primV := js.Get("prim")
	if primV == nil {
		return nil, fmt.Errorf("unexpected storage type: missing prim")
	}
	prim := strings.ToLower(string(primV.GetStringBytes()))

	annot := firstFieldAnnotation(js)

	args := js.GetArray("args")

	switch prim {
	case "address":
		return &T{Kind: KAddress, Name: annot}, nil
	case "bool":
		return &T{Kind: KBool, Name: annot}, nil
	case "bytes":
		return &T{Kind: KBytes, Name: annot}, nil
	case "int":
		return &T{Kind: KInt, Name: annot}, nil
	case "nat":
		return &T{Kind: KNat, Name: annot}, nil
	case "mutez":
		return &T{Kind: KMutez, Name: annot}, nil
	case "string":
		return &T{Kind: KString, Name: annot}, nil
	case "key_hash", "key":
		return &T{Kind: KKeyHash, Name: annot}, nil
	case "timestamp":
		return &T{Kind: KTimestamp, Name: annot}, nil
	case "unit":
		return &T{Kind: KUnit, Name: annot}, nil
	case "lambda":
		return &T{Kind: KStop, Name: annot}, nil
	case "option":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage type: option takes exactly 1 arg, got %d", len(args))
		}
		inner, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KOption, Name: annot, Left: inner}, nil
	case "list":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage type: list takes exactly 1 arg, got %d", len(args))
		}
		inner, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KList, Name: annot, Left: inner, Unique: false}, nil
	case "set":
		if len(args) != 1 {
			return nil, fmt.Errorf("unexpected storage type: set takes exactly 1 arg, got %d", len(args))
		}
		inner, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KList, Name: annot, Left: inner, Unique: true}, nil
	case "map":
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected storage type: map takes exactly 2 args, got %d", len(args))
		}
		key, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		val, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KMap, Name: annot, Left: key, Right: val}, nil
	case "big_map":
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected storage type: big_map takes exactly 2 args, got %d", len(args))
		}
		key, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		val, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KBigMap, Name: annot, Left: key, Right: val}, nil
	case "pair":
		if len(args) < 2 {
			return nil, fmt.Errorf("unexpected storage type: pair takes at least 2 args, got %d", len(args))
		}
		return parsePairArgs(args, annot)
	case "or":
		if len(args) != 2 {
			return nil, fmt.Errorf("unexpected storage type: or takes exactly 2 args, got %d", len(args))
		}
		left, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		right, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KOr, Name: annot, Left: left, Right: right}, nil
	default:
		return nil, fmt.Errorf("unexpected storage type: unknown prim %q", prim)
	}
}

// parsePairArgs right-folds an n-ary pair's arguments into a right comb:
// Pair(a, Pair(b, Pair(c, d))). The outermost node carries the annotation
// of the original n-ary pair; inner synthetic nodes are unnamed.
func parsePairArgs(args []*fastjson.Value, annot string) (*T, error) {
	if len(args) == 2 {
		left, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		right, err := ParseType(args[1])
		if err != nil {
			return nil, err
		}
		return &T{Kind: KPair, Name: annot, Left: left, Right: right}, nil
	}
	left, err := ParseType(args[0])
	if err != nil {
		return nil, err
	}
	right, err := parsePairArgs(args[1:], "")
	if err != nil {
		return nil, err
	}
	return &T{Kind: KPair, Name: annot, Left: left, Right: right}, nil
}

// firstFieldAnnotation returns the first `%`-prefixed annotation on a node
// with its sigil stripped, or "" if none is present. Type annotations (`:`)
// and variable annotations (`@`) are not field names and are ignored.
func firstFieldAnnotation(js *fastjson.Value) string {
	annots := js.GetArray("annots")
	for _, a := range annots {
		s := string(a.GetStringBytes())
		if strings.HasPrefix(s, "%") {
			return strings.TrimPrefix(s, "%")
		}
	}
	return ""
}
