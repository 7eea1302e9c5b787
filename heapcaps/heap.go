// Package heapcaps is a capability-directed region allocator.
//
// Memory is split into regions, each tagged with the capabilities its
// hardware provides (internal RAM, DMA reachable, executable, ...). A request
// is served from the first region, in layout order, whose caps contain every
// requested bit. A request that no region can satisfy fails; caps are never
// downgraded.
package heapcaps

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidFree   = errors.New("heapcaps: free of a block that is not live")
	ErrInvalidLayout = errors.New("heapcaps: invalid region layout")
	ErrUnknownCap    = errors.New("heapcaps: unknown capability")
)

const blockAlign = 4

// RegionSpec describes one region of a heap layout.
type RegionSpec struct {
	Name string
	Caps Caps
	Base uintptr
	Size int
}

// DefaultLayout returns an ESP32-like layout: DMA-capable DRAM, executable
// IRAM, a small RTC retention area and external PSRAM.
func DefaultLayout() []RegionSpec {
	return []RegionSpec{
		{Name: "dram", Caps: CapInternal | CapDMA | Cap8Bit | Cap32Bit | CapDefault, Base: 0x3ffb0000, Size: 128 << 10},
		{Name: "iram", Caps: CapInternal | CapExec | Cap32Bit, Base: 0x40080000, Size: 64 << 10},
		{Name: "rtc", Caps: CapInternal | CapRTCRAM | CapRetention | Cap8Bit | Cap32Bit, Base: 0x50000000, Size: 8 << 10},
		{Name: "psram", Caps: CapSPIRAM | Cap8Bit | Cap32Bit | CapDefault, Base: 0x3f800000, Size: 1 << 20},
	}
}

// Heap is a set of capability-tagged regions. It is safe for concurrent use.
type Heap struct {
	mu      sync.Mutex
	regions []*Region
}

// NewHeap builds a heap from a layout.
func NewHeap(layout []RegionSpec) (*Heap, error) {
	if len(layout) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrInvalidLayout)
	}
	h := &Heap{}
	seen := make(map[string]bool, len(layout))
	for _, spec := range layout {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: region without name", ErrInvalidLayout)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("%w: duplicate region %q", ErrInvalidLayout, spec.Name)
		}
		if spec.Size < blockAlign {
			return nil, fmt.Errorf("%w: region %q size %d", ErrInvalidLayout, spec.Name, spec.Size)
		}
		if spec.Caps == 0 || spec.Caps&CapInvalid != 0 {
			return nil, fmt.Errorf("%w: region %q caps %s", ErrInvalidLayout, spec.Name, spec.Caps)
		}
		seen[spec.Name] = true
		h.regions = append(h.regions, newRegion(spec))
	}
	return h, nil
}

// MustNewHeap is NewHeap that panics on an invalid layout.
func MustNewHeap(layout []RegionSpec) *Heap {
	h, err := NewHeap(layout)
	if err != nil {
		panic(err)
	}
	return h
}

// Malloc allocates size bytes from a region providing caps.
//
// It returns nil when size is not positive, when the caps combination is
// impossible, or when no capable region has a large enough free span.
func (h *Heap) Malloc(size int, caps Caps) *Block {
	if size <= 0 || caps&CapInvalid != 0 {
		return nil
	}
	if caps&CapExec != 0 {
		// Executable memory is word-addressed only.
		if caps&(Cap8Bit|CapDMA) != 0 {
			return nil
		}
		caps |= Cap32Bit
	}
	n := alignUp(size)
	if n < size {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regions {
		if !r.caps.Has(caps) {
			continue
		}
		if b := r.alloc(n, size); b != nil {
			return b
		}
	}
	return nil
}

// Free returns a block to its region. Free(nil) is a no-op.
//
// Freeing a block twice, or a block from another heap, panics with ErrInvalidFree.
func (h *Heap) Free(b *Block) {
	if b == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if b.region == nil || !h.owns(b.region) || !b.region.release(b) {
		panic(fmt.Errorf("%w: %v", ErrInvalidFree, b))
	}
}

func (h *Heap) owns(r *Region) bool {
	for _, own := range h.regions {
		if own == r {
			return true
		}
	}
	return false
}

// Info aggregates accounting over the regions that provide caps.
func (h *Heap) Info(caps Caps) Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	var info Info
	for _, r := range h.regions {
		if !r.caps.Has(caps) {
			continue
		}
		ri := r.info()
		info.Total += ri.Total
		info.Free += ri.Free
		info.Allocated += ri.Allocated
		info.MinimumFree += ri.MinimumFree
		info.Blocks += ri.Blocks
		if ri.LargestFreeBlock > info.LargestFreeBlock {
			info.LargestFreeBlock = ri.LargestFreeBlock
		}
	}
	return info
}

// FreeSize returns the free bytes across the regions that provide caps.
func (h *Heap) FreeSize(caps Caps) int {
	return h.Info(caps).Free
}

// Regions returns a snapshot of every region's accounting, in layout order.
func (h *Heap) Regions() []RegionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RegionInfo, 0, len(h.regions))
	for _, r := range h.regions {
		out = append(out, r.info())
	}
	return out
}

// Info is aggregated heap accounting.
type Info struct {
	Total            int
	Free             int
	Allocated        int
	MinimumFree      int
	LargestFreeBlock int
	Blocks           int
}

// Block is a live allocation.
type Block struct {
	region *Region
	off    int
	size   int
	req    int
}

// Bytes returns the requested bytes of the block, or nil once it was freed.
func (b *Block) Bytes() []byte {
	if b == nil || b.region == nil {
		return nil
	}
	return b.region.mem[b.off : b.off+b.req : b.off+b.req]
}

// Len returns the requested size.
func (b *Block) Len() int { return b.req }

// Size returns the reserved size, rounded up to the block alignment.
func (b *Block) Size() int { return b.size }

// Addr returns the simulated address of the block.
func (b *Block) Addr() uintptr {
	if b.region == nil {
		return 0
	}
	return b.region.base + uintptr(b.off)
}

// Region returns the name of the region the block lives in.
func (b *Block) Region() string {
	if b.region == nil {
		return ""
	}
	return b.region.name
}

// Caps returns the caps of the region the block lives in.
func (b *Block) Caps() Caps {
	if b.region == nil {
		return 0
	}
	return b.region.caps
}

func (b *Block) String() string {
	if b == nil {
		return "<nil>"
	}
	if b.region == nil {
		return fmt.Sprintf("freed block (%d bytes)", b.req)
	}
	return fmt.Sprintf("%s@0x%08x+%d", b.region.name, b.Addr(), b.size)
}

func alignUp(n int) int {
	return (n + blockAlign - 1) &^ (blockAlign - 1)
}
