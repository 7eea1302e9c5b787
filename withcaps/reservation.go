package withcaps

import "rtcaps/heapcaps"

// reservation collects the blocks backing one object under construction.
// Unless commit is called, release frees every block it holds.
type reservation struct {
	heap      Allocator
	blocks    []*heapcaps.Block
	short     bool
	committed bool
}

func (l *Layer) reserve() *reservation {
	return &reservation{heap: l.heap, blocks: make([]*heapcaps.Block, 0, 2)}
}

// alloc attempts one allocation. A failure is remembered, not reported, so
// every attempt resolves before the caller checks ok.
func (r *reservation) alloc(size int, caps heapcaps.Caps) *heapcaps.Block {
	b := r.heap.Malloc(size, caps)
	if b == nil {
		r.short = true
		return nil
	}
	r.blocks = append(r.blocks, b)
	return b
}

func (r *reservation) ok() bool { return !r.short }

func (r *reservation) commit() { r.committed = true }

func (r *reservation) release() {
	if r.committed {
		return
	}
	for i := len(r.blocks) - 1; i >= 0; i-- {
		r.heap.Free(r.blocks[i])
	}
	r.blocks = nil
}
