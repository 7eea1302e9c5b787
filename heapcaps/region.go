package heapcaps

// span is a run of free bytes inside a region.
type span struct {
	off  int
	size int
}

// Region is one capability-tagged memory area with a first-fit free list.
//
// Regions are only touched with the owning Heap's lock held.
type Region struct {
	name string
	caps Caps
	base uintptr
	mem  []byte

	spans []span // sorted by offset, never adjacent
	live  map[int]*Block

	free    int
	minFree int
}

// RegionInfo is a snapshot of a region's accounting.
type RegionInfo struct {
	Name             string
	Caps             Caps
	Base             uintptr
	Total            int
	Free             int
	Allocated        int
	MinimumFree      int
	LargestFreeBlock int
	Blocks           int
}

func newRegion(spec RegionSpec) *Region {
	size := spec.Size &^ (blockAlign - 1)
	return &Region{
		name:    spec.Name,
		caps:    spec.Caps,
		base:    spec.Base,
		mem:     make([]byte, size),
		spans:   []span{{off: 0, size: size}},
		live:    make(map[int]*Block),
		free:    size,
		minFree: size,
	}
}

func (r *Region) alloc(n, req int) *Block {
	for i, s := range r.spans {
		if s.size < n {
			continue
		}
		off := s.off
		if s.size == n {
			r.spans = append(r.spans[:i], r.spans[i+1:]...)
		} else {
			r.spans[i] = span{off: s.off + n, size: s.size - n}
		}
		r.free -= n
		if r.free < r.minFree {
			r.minFree = r.free
		}
		clear(r.mem[off : off+n])
		b := &Block{region: r, off: off, size: n, req: req}
		r.live[off] = b
		return b
	}
	return nil
}

func (r *Region) release(b *Block) bool {
	if r.live[b.off] != b {
		return false
	}
	delete(r.live, b.off)
	r.insert(span{off: b.off, size: b.size})
	r.free += b.size
	b.region = nil
	return true
}

// insert adds a free span, merging it with its neighbours.
func (r *Region) insert(s span) {
	i := 0
	for i < len(r.spans) && r.spans[i].off < s.off {
		i++
	}
	if i > 0 && r.spans[i-1].off+r.spans[i-1].size == s.off {
		i--
		s = span{off: r.spans[i].off, size: r.spans[i].size + s.size}
		r.spans = append(r.spans[:i], r.spans[i+1:]...)
	}
	if i < len(r.spans) && s.off+s.size == r.spans[i].off {
		s.size += r.spans[i].size
		r.spans = append(r.spans[:i], r.spans[i+1:]...)
	}
	r.spans = append(r.spans, span{})
	copy(r.spans[i+1:], r.spans[i:])
	r.spans[i] = s
}

func (r *Region) info() RegionInfo {
	largest := 0
	for _, s := range r.spans {
		if s.size > largest {
			largest = s.size
		}
	}
	return RegionInfo{
		Name:             r.name,
		Caps:             r.caps,
		Base:             r.base,
		Total:            len(r.mem),
		Free:             r.free,
		Allocated:        len(r.mem) - r.free,
		MinimumFree:      r.minFree,
		LargestFreeBlock: largest,
		Blocks:           len(r.live),
	}
}
