package storageproc

// idGenerator is the per-processing-run replacement for que-pasa's
// process-wide mutex-guarded id counter (spec.md §9's "global mutable id
// counter" design note): one instance lives for exactly one ProcessBlock
// call against one contract, starting at 1 (0 is reserved as the "not yet
// assigned" sentinel, matching tx.ID's own convention and spec.md §8
// scenario 1's `id=1` root row). Row ids and tx context ids are drawn from
// this same counter, not two separate ones — que-pasa's own
// StorageProcessor::tx_context assigns a tx context's id from the
// identical id_generator its row-insert path uses — so that the emitted
// id space for one run is contiguous end to end; internal/repository is
// responsible for offsetting every id a batch of these runs produced into
// one globally unique space at commit time.
type idGenerator struct {
	n int64
}

func newIDGenerator() *idGenerator {
	return &idGenerator{n: 1}
}

// Next returns the next id and advances the counter.
func (g *idGenerator) Next() int64 {
	id := g.n
	g.n++
	return id
}
