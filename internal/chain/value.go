package chain

import "math/big"

// BigInt is the arbitrary-precision integer type backing Int/Nat/Mutez
// column values; Michelson ints have no fixed width.
type BigInt = big.Int

// NullValue is a SQL NULL column value, written for a None leaf value and
// for every Unit column.
func NullValue() Value { return Value{Null: true} }

// StringValue wraps a TEXT/VARCHAR column value (address, bytes, string,
// key_hash, timestamp-as-text, or an Or-branch literal tag).
func StringValue(s string) Value { return Value{Str: s} }

// IntValue wraps a NUMERIC(64) column value.
func IntValue(n *big.Int) Value { return Value{Int: n} }

// BoolValue wraps a BOOLEAN column value.
func BoolValue(b bool) Value { return Value{Bool: b, IsBool: true} }
