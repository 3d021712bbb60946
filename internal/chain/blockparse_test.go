package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

const sampleBlockJSON = `{
  "hash": "BLockHash",
  "header": {"level": 42, "predecessor": "BLockPred", "timestamp": "2024-01-01T00:00:00Z"},
  "operations": [[], [], [], [
    {
      "hash": "onvSom3",
      "contents": [
        {
          "source": "tz1src",
          "destination": "KT1dest",
          "parameters": {"entrypoint": "default", "value": {"int": "5"}},
          "metadata": {
            "operation_result": {
              "status": "applied",
              "storage": {"string": "abc"},
              "big_map_diff": [
                {"action": "update", "big_map": "10", "key": {"bytes": "00"}, "value": {"int": "1"}}
              ],
              "originated_contracts": []
            },
            "internal_operation_results": [
              {
                "source": "KT1dest",
                "destination": "KT1inner",
                "parameters": {"entrypoint": "transfer", "value": {"int": "1"}},
                "result": {"status": "applied", "originated_contracts": ["KT1new"]}
              }
            ]
          }
        }
      ]
    }
  ]]
}`

func TestParseBlock(t *testing.T) {
	js, err := fastjson.Parse(sampleBlockJSON)
	require.NoError(t, err)

	b, err := ParseBlock(js)
	require.NoError(t, err)

	require.Equal(t, "BLockHash", b.Hash)
	require.Equal(t, int32(42), b.Header.Level)
	require.Equal(t, "BLockPred", b.Header.Predecessor)
	require.Len(t, b.Operations, 4)
	require.Len(t, b.Operations[3], 1)

	op := b.Operations[3][0]
	require.Equal(t, "onvSom3", op.Hash)
	require.Len(t, op.Contents, 1)

	content := op.Contents[0]
	require.Equal(t, "tz1src", *content.Source)
	require.Equal(t, "KT1dest", *content.Destination)
	require.Equal(t, "default", content.Parameters.Entrypoint)
	require.JSONEq(t, `{"int":"5"}`, string(content.Parameters.Value))

	res := content.Metadata.OperationResult
	require.NotNil(t, res)
	require.Equal(t, "applied", res.Status)
	require.JSONEq(t, `{"string":"abc"}`, string(res.Storage))
	require.Len(t, res.BigMapDiff, 1)
	require.Equal(t, "update", res.BigMapDiff[0].Action)
	require.Equal(t, "10", *res.BigMapDiff[0].BigMap)

	require.Len(t, content.Metadata.InternalOperationResults, 1)
	internal := content.Metadata.InternalOperationResults[0]
	require.Equal(t, "KT1dest", internal.Source)
	require.Equal(t, "KT1inner", *internal.Destination)
	require.Equal(t, []string{"KT1new"}, internal.Result.OriginatedContracts)
}

func TestParseBlock_MissingHeaderErrors(t *testing.T) {
	js, err := fastjson.Parse(`{"hash":"h","operations":[]}`)
	require.NoError(t, err)
	_, err = ParseBlock(js)
	require.Error(t, err)
}
