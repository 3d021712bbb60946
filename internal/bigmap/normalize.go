package bigmap

import (
	"sort"

	"tzindexer/internal/chain"
)

// Entry is one transaction context's big-map ops, in the order the node
// reported them for that context.
type Entry struct {
	Ctx chain.TxContext
	Ops []Op
}

// Normalize resolves every op that ultimately affects bigmapTarget, as of
// tx context at, into a flat list of ops expressed directly against
// bigmapTarget, plus the set of other big-map ids a Copy pulled in along
// the way (deps). entries need not be sorted or pre-filtered; Normalize
// restricts itself to entries at or before at and walks them in reverse
// chronological order.
//
// Each call only resolves the contribution of at itself (and whatever
// earlier contexts a Copy within at needs to materialize from): a direct
// Update/Delete on bigmapTarget in a context strictly before at is
// assumed already flushed by that earlier context's own Normalize call,
// so bigmapTarget is dropped from the live target set once its owning
// context has been walked. A dependency id introduced by a Copy has no
// such exclusion and keeps contributing from every earlier context until
// itself cleared or exhausted.
func Normalize(entries []Entry, bigmapTarget int32, at chain.TxContext) (deps []int32, ops []Op) {
	relevant := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Ctx.Less(at) || e.Ctx.Key() == at.Key() {
			relevant = append(relevant, e)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[j].Ctx.Less(relevant[i].Ctx)
	})

	targets := []int32{bigmapTarget}

	for _, e := range relevant {
		if len(targets) == 0 {
			break
		}
		for i := len(e.Ops) - 1; i >= 0; i-- {
			op := e.Ops[i]
			var cleared []int32
			snapshot := append([]int32(nil), targets...)
			for _, target := range snapshot {
				if op.Bigmap != target {
					continue
				}
				switch op.Kind {
				case OpUpdate, OpDelete:
					ops = append(ops, op.WithBigmap(bigmapTarget))
				case OpCopy:
					deps = append(deps, op.Source)
					targets = append(targets, op.Source)
				case OpClear:
					cleared = append(cleared, op.Bigmap)
					if op.Bigmap == bigmapTarget {
						ops = append(ops, op.WithBigmap(bigmapTarget))
					}
				}
			}
			if len(cleared) > 0 {
				targets = without(targets, cleared)
			}
		}
		targets = without(targets, []int32{bigmapTarget})
	}

	reverseOps(ops)
	return deps, ops
}

func without(ids []int32, remove []int32) []int32 {
	out := ids[:0:0]
	for _, id := range ids {
		skip := false
		for _, r := range remove {
			if id == r {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, id)
		}
	}
	return out
}

func reverseOps(ops []Op) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}
