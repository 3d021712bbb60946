package bigmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tzindexer/internal/chain"
)

func ctx(level int32) chain.TxContext {
	return chain.TxContext{Level: level, Contract: "KT1x", OperationHash: "op"}
}

func upd(bigmap int32, n string) Op  { return Op{Kind: OpUpdate, Bigmap: bigmap, Key: n} }
func cp(dst, src int32) Op           { return Op{Kind: OpCopy, Bigmap: dst, Source: src} }
func clr(bigmap int32) Op            { return Op{Kind: OpClear, Bigmap: bigmap} }

func TestNormalize_Basic(t *testing.T) {
	entries := []Entry{{Ctx: ctx(1), Ops: []Op{upd(0, "1"), upd(1, "1")}}}
	deps, ops := Normalize(entries, 0, ctx(1))
	require.Empty(t, deps)
	require.Equal(t, []Op{upd(0, "1")}, ops)
}

func TestNormalize_Empty(t *testing.T) {
	deps, ops := Normalize(nil, 0, ctx(1))
	require.Empty(t, deps)
	require.Empty(t, ops)
}

func TestNormalize_BasicCopy(t *testing.T) {
	// updates on the staging bigmap after the copy point are never seen
	// by the destination.
	entries := []Entry{{Ctx: ctx(1), Ops: []Op{
		upd(10, "1"), upd(10, "2"), cp(0, 10), upd(10, "3"),
	}}}
	deps, ops := Normalize(entries, 0, ctx(1))
	require.Equal(t, []int32{10}, deps)
	require.Equal(t, []Op{upd(0, "1"), upd(0, "2")}, ops)
}

func TestNormalize_NestedCopy(t *testing.T) {
	entries := []Entry{{Ctx: ctx(1), Ops: []Op{
		upd(10, "1"), cp(5, 10), upd(5, "2"), cp(0, 5),
	}}}
	deps, ops := Normalize(entries, 0, ctx(1))
	require.Equal(t, []int32{5, 10}, deps)
	require.Equal(t, []Op{upd(0, "1"), upd(0, "2")}, ops)
}

func TestNormalize_CopyCrossesTxContextsTargetDoesNot(t *testing.T) {
	// target bigmap 0 only picks up direct updates from its own (most
	// recent) tx context; the dependency bigmap 5 keeps contributing
	// from earlier contexts too.
	entries := []Entry{
		{Ctx: ctx(1), Ops: []Op{upd(5, "1"), upd(5, "2"), upd(0, "10-omitted")}},
		{Ctx: ctx(2), Ops: []Op{upd(5, "3"), cp(0, 5), upd(0, "4")}},
	}
	deps, ops := Normalize(entries, 0, ctx(2))
	require.Equal(t, []int32{5}, deps)
	require.Equal(t, []Op{upd(0, "1"), upd(0, "2"), upd(0, "3"), upd(0, "4")}, ops)
}

func TestNormalize_CopyUpdatesBeforeClearOmitted(t *testing.T) {
	entries := []Entry{{Ctx: ctx(1), Ops: []Op{
		upd(10, "1"), upd(10, "2"), clr(10), upd(10, "3"), upd(10, "4"), cp(0, 10),
	}}}
	deps, ops := Normalize(entries, 0, ctx(1))
	require.Equal(t, []int32{10}, deps)
	require.Equal(t, []Op{upd(0, "3"), upd(0, "4")}, ops)
}

func TestNormalize_ClearOnTargetEmittedVerbatim(t *testing.T) {
	// a Clear matching the sink itself suppresses everything before it
	// and is re-emitted directly against the sink.
	entries := []Entry{{Ctx: ctx(1), Ops: []Op{
		upd(0, "1"), upd(0, "2"), clr(0), upd(0, "3"), upd(0, "4"),
	}}}
	deps, ops := Normalize(entries, 0, ctx(1))
	require.Empty(t, deps)
	require.Equal(t, []Op{clr(0), upd(0, "3"), upd(0, "4")}, ops)
}

func TestNormalize_EntriesAfterAtAreIgnored(t *testing.T) {
	entries := []Entry{
		{Ctx: ctx(1), Ops: []Op{upd(0, "1")}},
		{Ctx: ctx(2), Ops: []Op{upd(0, "2-future")}},
	}
	_, ops := Normalize(entries, 0, ctx(1))
	require.Equal(t, []Op{upd(0, "1")}, ops)
}
