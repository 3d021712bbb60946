package chain

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// ParseBlock decodes one node `blocks/<level>` RPC response into a Block.
// Everything below the operation-result layer (storage, big-map
// key/value) is kept as raw Micheline JSON bytes rather than unmarshaled
// further — re-serializing node JSON strictly to parse it again a layer
// down would just throw information away for no benefit, the same
// argument que-pasa's own octez::block::Block makes for treating most of
// its fields as `#[serde(skip)]`.
func ParseBlock(js *fastjson.Value) (*Block, error) {
	hash := string(js.GetStringBytes("hash"))

	header := js.Get("header")
	if header == nil {
		return nil, fmt.Errorf("chain.ParseBlock: missing header")
	}
	b := &Block{
		Hash: hash,
		Header: BlockHeader{
			Level:       int32(header.GetInt("level")),
			Predecessor: string(header.GetStringBytes("predecessor")),
			Timestamp:   string(header.GetStringBytes("timestamp")),
		},
	}

	groups := js.GetArray("operations")
	b.Operations = make([][]Operation, len(groups))
	for i, group := range groups {
		ops := group.GetArray()
		out := make([]Operation, len(ops))
		for j, opJS := range ops {
			op, err := parseOperation(opJS)
			if err != nil {
				return nil, fmt.Errorf("chain.ParseBlock: operation[%d][%d]: %w", i, j, err)
			}
			out[j] = *op
		}
		b.Operations[i] = out
	}
	return b, nil
}

func parseOperation(js *fastjson.Value) (*Operation, error) {
	op := &Operation{Hash: string(js.GetStringBytes("hash"))}
	contents := js.GetArray("contents")
	op.Contents = make([]OperationContent, len(contents))
	for i, c := range contents {
		content, err := parseContent(c)
		if err != nil {
			return nil, fmt.Errorf("content[%d]: %w", i, err)
		}
		op.Contents[i] = *content
	}
	return op, nil
}

func parseContent(js *fastjson.Value) (*OperationContent, error) {
	c := &OperationContent{
		Source:      optionalString(js, "source"),
		Destination: optionalString(js, "destination"),
		Parameters:  parseParameters(js.Get("parameters")),
	}
	meta, err := parseOperationMetadata(js.Get("metadata"))
	if err != nil {
		return nil, err
	}
	c.Metadata = *meta
	return c, nil
}

func parseParameters(js *fastjson.Value) *Params {
	if js == nil {
		return nil
	}
	return &Params{
		Entrypoint: string(js.GetStringBytes("entrypoint")),
		Value:      rawBytes(js.Get("value")),
	}
}

func parseOperationMetadata(js *fastjson.Value) (*OperationMetadata, error) {
	m := &OperationMetadata{}
	if js == nil {
		return m, nil
	}
	if resJS := js.Get("operation_result"); resJS != nil {
		res, err := parseOperationResult(resJS)
		if err != nil {
			return nil, fmt.Errorf("operation_result: %w", err)
		}
		m.OperationResult = res
	}
	for i, internalJS := range js.GetArray("internal_operation_results") {
		internal, err := parseInternalOperationResult(internalJS)
		if err != nil {
			return nil, fmt.Errorf("internal_operation_results[%d]: %w", i, err)
		}
		m.InternalOperationResults = append(m.InternalOperationResults, *internal)
	}
	return m, nil
}

func parseInternalOperationResult(js *fastjson.Value) (*InternalOperationResult, error) {
	res, err := parseOperationResult(js.Get("result"))
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	internal := &InternalOperationResult{
		Source:      string(js.GetStringBytes("source")),
		Destination: optionalString(js, "destination"),
		Parameters:  parseParameters(js.Get("parameters")),
	}
	if res != nil {
		internal.Result = *res
	}
	return internal, nil
}

func parseOperationResult(js *fastjson.Value) (*OperationResult, error) {
	if js == nil {
		return nil, nil
	}
	res := &OperationResult{
		Status:  string(js.GetStringBytes("status")),
		Storage: rawBytes(js.Get("storage")),
	}
	for _, c := range js.GetArray("originated_contracts") {
		res.OriginatedContracts = append(res.OriginatedContracts, string(c.GetStringBytes()))
	}
	for i, d := range js.GetArray("big_map_diff") {
		diff, err := parseBigMapDiff(d)
		if err != nil {
			return nil, fmt.Errorf("big_map_diff[%d]: %w", i, err)
		}
		res.BigMapDiff = append(res.BigMapDiff, *diff)
	}
	return res, nil
}

func parseBigMapDiff(js *fastjson.Value) (*BigMapDiff, error) {
	return &BigMapDiff{
		Action:            string(js.GetStringBytes("action")),
		BigMap:            optionalString(js, "big_map"),
		SourceBigMap:      optionalString(js, "source_big_map"),
		DestinationBigMap: optionalString(js, "destination_big_map"),
		Key:               rawBytes(js.Get("key")),
		Value:             rawBytes(js.Get("value")),
	}, nil
}

func optionalString(js *fastjson.Value, key string) *string {
	v := js.Get(key)
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil
	}
	s := string(v.GetStringBytes())
	return &s
}

// rawBytes preserves a sub-value's own JSON text verbatim, rather than
// re-encoding it through Go's own json package, so the byte-for-byte
// content a later Micheline parse sees matches what the node actually
// sent.
func rawBytes(js *fastjson.Value) []byte {
	if js == nil || js.Type() == fastjson.TypeNull {
		return nil
	}
	return js.MarshalTo(nil)
}
