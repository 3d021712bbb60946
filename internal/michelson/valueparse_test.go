package michelson

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func parseValueJSON(t *testing.T, js string) *V {
	t.Helper()
	v, err := fastjson.Parse(js)
	require.NoError(t, err)
	val, err := ParseValue(v)
	require.NoError(t, err)
	return val
}

func TestParseValue_String(t *testing.T) {
	v := parseValueJSON(t, `{"string":"abc"}`)
	require.Equal(t, VString, v.Kind)
	require.Equal(t, "abc", v.Str)
}

func TestParseValue_Int(t *testing.T) {
	v := parseValueJSON(t, `{"int":"-5"}`)
	require.Equal(t, VInt, v.Kind)
	require.Equal(t, "-5", v.Int.String())
}

func TestParseValue_PairArrayTopLevel(t *testing.T) {
	v := parseValueJSON(t, `[{"int":"1"},{"string":"a"}]`)
	require.Equal(t, VPair, v.Kind)
	require.Equal(t, VInt, v.Left.Kind)
	require.Equal(t, VString, v.Right.Kind)
}

func TestParseValue_NaryArrayRightFolds(t *testing.T) {
	v := parseValueJSON(t, `[{"int":"1"},{"int":"2"},{"int":"3"}]`)
	require.Equal(t, VPair, v.Kind)
	require.Equal(t, "1", v.Left.Int.String())
	require.Equal(t, VPair, v.Right.Kind)
	require.Equal(t, "2", v.Right.Left.Int.String())
	require.Equal(t, "3", v.Right.Right.Int.String())
}

func TestParseValue_ListOfElt(t *testing.T) {
	v := parseValueJSON(t, `[
		{"prim":"Elt","args":[{"int":"3"},{"string":"a"}]},
		{"prim":"Elt","args":[{"int":"1"},{"string":"b"}]}
	]`)
	require.Equal(t, VPair, v.Kind) // two-element bare array right-folds same as Pair
}

func TestParseValue_NoneAndSome(t *testing.T) {
	none := parseValueJSON(t, `{"prim":"None"}`)
	require.Equal(t, VNone, none.Kind)

	some := parseValueJSON(t, `{"prim":"Some","args":[{"int":"1"}]}`)
	require.Equal(t, VInt, some.Kind)
}

func TestParseValue_LeftRight(t *testing.T) {
	l := parseValueJSON(t, `{"prim":"Left","args":[{"prim":"Unit"}]}`)
	require.Equal(t, VLeft, l.Kind)
	require.Equal(t, VUnit, l.Left.Kind)

	r := parseValueJSON(t, `{"prim":"Right","args":[{"string":"x"}]}`)
	require.Equal(t, VRight, r.Kind)
	require.Equal(t, VString, r.Right.Kind)
}

func TestParseValue_UnknownPrimBecomesNone(t *testing.T) {
	v := parseValueJSON(t, `{"prim":"PUSH","args":[{"prim":"int"},{"int":"1"}]}`)
	require.Equal(t, VNone, v.Kind)
}

func TestDecodeAddress_PassthroughOnMalformed(t *testing.T) {
	require.Equal(t, "not-hex", DecodeAddress("not-hex"))
}

func TestDecodeAddress_RoundTrip(t *testing.T) {
	hexAddr := "0000e7670f32038107a59a2b9cfefae36ea21f5aa63c"
	decoded := DecodeAddress(hexAddr)
	require.Equal(t, byte('t'), decoded[0])
	reenc, err := EncodeAddress(decoded)
	require.NoError(t, err)
	require.Equal(t, hexAddr, reenc)
}
