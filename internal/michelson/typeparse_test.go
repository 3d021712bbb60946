package michelson

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func parseTypeJSON(t *testing.T, js string) *T {
	t.Helper()
	v, err := fastjson.Parse(js)
	require.NoError(t, err)
	ty, err := ParseType(v)
	require.NoError(t, err)
	return ty
}

func TestParseType_Primitive(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"string","annots":["%owner"]}`)
	require.Equal(t, KString, ty.Kind)
	require.Equal(t, "owner", ty.Name)
}

func TestParseType_PairBinary(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"pair","args":[{"prim":"int"},{"prim":"string"}]}`)
	require.Equal(t, KPair, ty.Kind)
	require.Equal(t, KInt, ty.Left.Kind)
	require.Equal(t, KString, ty.Right.Kind)
}

func TestParseType_PairNaryRightFolds(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"pair","args":[
		{"prim":"int"},{"prim":"string"},{"prim":"bool"},{"prim":"bytes"}
	]}`)
	require.Equal(t, KPair, ty.Kind)
	require.Equal(t, KInt, ty.Left.Kind)
	require.Equal(t, KPair, ty.Right.Kind)
	require.Equal(t, KString, ty.Right.Left.Kind)
	require.Equal(t, KPair, ty.Right.Right.Kind)
	require.Equal(t, KBool, ty.Right.Right.Left.Kind)
	require.Equal(t, KBytes, ty.Right.Right.Right.Kind)
}

func TestParseType_SetIsUniqueList(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"set","args":[{"prim":"int"}]}`)
	require.Equal(t, KList, ty.Kind)
	require.True(t, ty.Unique)
}

func TestParseType_ListIsNotUnique(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"list","args":[{"prim":"int"}]}`)
	require.Equal(t, KList, ty.Kind)
	require.False(t, ty.Unique)
}

func TestParseType_Lambda_IsStop(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"lambda","args":[{"prim":"unit"},{"prim":"unit"}]}`)
	require.Equal(t, KStop, ty.Kind)
}

func TestParseType_UnknownPrimErrors(t *testing.T) {
	v, err := fastjson.Parse(`{"prim":"not_a_real_type"}`)
	require.NoError(t, err)
	_, err = ParseType(v)
	require.Error(t, err)
}

func TestParseType_BigMap(t *testing.T) {
	ty := parseTypeJSON(t, `{"prim":"big_map","args":[
		{"prim":"int","annots":["%idx_foo"]},
		{"prim":"string","annots":["%bar"]}
	],"annots":["%m"]}`)
	require.Equal(t, KBigMap, ty.Kind)
	require.Equal(t, "m", ty.Name)
	require.Equal(t, KInt, ty.Left.Kind)
	require.Equal(t, KString, ty.Right.Kind)
}
