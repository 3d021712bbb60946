package storageproc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"tzindexer/internal/chain"
	"tzindexer/internal/michelson"
	"tzindexer/internal/relational"
)

// parseValueJSON parses raw Micheline JSON text into a V tree. Empty
// input (an absent parameters/storage payload) is treated as None rather
// than an error; malformed JSON is returned as an error (spec.md §4.4).
func parseValueJSON(raw string) (*michelson.V, error) {
	if raw == "" {
		return &michelson.V{Kind: michelson.VNone}, nil
	}
	var p fastjson.Parser
	js, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("storageproc: invalid Micheline JSON: %w", err)
	}
	return michelson.ParseValue(js)
}

// storageToSQLValue converts a leaf V into the chain.Value its declared
// column type expects (spec.md §4.6's "type conversion ... total over
// matched types"). entry.Value, when set, is an OrEnumeration Unit
// branch's literal tag and is written as-is regardless of v.
func storageToSQLValue(entry *relational.Entry, v *michelson.V) (chain.Value, error) {
	if entry.Value != "" {
		return chain.StringValue(entry.Value), nil
	}

	switch entry.ColumnType.Kind {
	case michelson.KAddress:
		switch v.Kind {
		case michelson.VBytes:
			return chain.StringValue(michelson.DecodeAddress(v.Str)), nil
		case michelson.VAddress, michelson.VString:
			return chain.StringValue(v.Str), nil
		case michelson.VNone:
			return chain.NullValue(), nil
		default:
			return chain.Value{}, fmt.Errorf("storageproc: address column got unexpected value kind %v", v.Kind)
		}

	case michelson.KKeyHash, michelson.KBytes, michelson.KString:
		switch v.Kind {
		case michelson.VBytes, michelson.VString, michelson.VKeyHash:
			return chain.StringValue(v.Str), nil
		case michelson.VNone:
			return chain.NullValue(), nil
		default:
			return chain.Value{}, fmt.Errorf("storageproc: string-like column got unexpected value kind %v", v.Kind)
		}

	case michelson.KTimestamp:
		if v.Kind == michelson.VNone {
			return chain.NullValue(), nil
		}
		s, err := parseDate(v)
		if err != nil {
			return chain.Value{}, err
		}
		return chain.StringValue(s), nil

	case michelson.KBool:
		if v.Kind == michelson.VNone {
			return chain.NullValue(), nil
		}
		if v.Kind != michelson.VBool {
			return chain.Value{}, fmt.Errorf("storageproc: bool column got unexpected value kind %v", v.Kind)
		}
		return chain.BoolValue(v.Bool), nil

	case michelson.KUnit:
		return chain.NullValue(), nil

	case michelson.KInt, michelson.KNat, michelson.KMutez:
		switch v.Kind {
		case michelson.VInt, michelson.VNat, michelson.VMutez:
			return chain.IntValue(v.Int), nil
		case michelson.VNone:
			return chain.NullValue(), nil
		default:
			return chain.Value{}, fmt.Errorf("storageproc: numeric column got unexpected value kind %v", v.Kind)
		}

	default:
		return chain.Value{}, fmt.Errorf("storageproc: unsupported column type %s", entry.ColumnType.Kind)
	}
}

// parseDate accepts either an RFC3339 string or a Unix-seconds integer,
// the two shapes a Michelson timestamp value arrives as (spec.md §4.6).
func parseDate(v *michelson.V) (string, error) {
	switch v.Kind {
	case michelson.VTimestamp, michelson.VString:
		if _, err := time.Parse(time.RFC3339, v.Str); err == nil {
			return v.Str, nil
		}
		if secs, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC().Format(time.RFC3339), nil
		}
		return v.Str, nil
	case michelson.VInt, michelson.VNat, michelson.VMutez:
		return time.Unix(v.Int.Int64(), 0).UTC().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("storageproc: cannot parse timestamp from value kind %v", v.Kind)
	}
}
