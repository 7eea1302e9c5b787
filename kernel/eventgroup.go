package kernel

import (
	"sync"

	"rtcaps/heapcaps"
)

// EventBits is a set of event flags.
type EventBits uint32

// EventBitsMask covers the bits an event group can hold. The top byte is
// reserved.
const EventBitsMask EventBits = 0x00ffffff

// EventGroup is a set of event flags tasks can wait on.
type EventGroup struct {
	k *Kernel

	mu sync.Mutex
	backing
	bits    EventBits
	deleted bool
}

// CreateEventGroupStatic creates an event group on a caller-supplied control block.
func (k *Kernel) CreateEventGroupStatic(cb *heapcaps.Block) (*EventGroup, error) {
	if err := checkControlBlock(cb, SizeofStaticEventGroup); err != nil {
		return nil, err
	}
	return &EventGroup{k: k, backing: newBacking(tagEventGroup, cb, nil)}, nil
}

// CreateEventGroup creates an event group on kernel-allocated memory.
func (k *Kernel) CreateEventGroup() (*EventGroup, error) {
	cb, _, err := k.allocDynamic(SizeofStaticEventGroup, 0)
	if err != nil {
		return nil, err
	}
	eg, err := k.CreateEventGroupStatic(cb)
	if err != nil {
		k.freeDynamic(cb, nil)
		return nil, err
	}
	eg.static = false
	return eg, nil
}

// SetBits sets bits and returns the resulting value.
func (eg *EventGroup) SetBits(bits EventBits) EventBits {
	eg.mu.Lock()
	defer eg.mu.Unlock()
	if !eg.deleted {
		eg.bits |= bits & EventBitsMask
	}
	return eg.bits
}

// ClearBits clears bits and returns the value before clearing.
func (eg *EventGroup) ClearBits(bits EventBits) EventBits {
	eg.mu.Lock()
	defer eg.mu.Unlock()
	prev := eg.bits
	if !eg.deleted {
		eg.bits &^= bits
	}
	return prev
}

// GetBits returns the current value.
func (eg *EventGroup) GetBits() EventBits {
	eg.mu.Lock()
	defer eg.mu.Unlock()
	return eg.bits
}

// WaitBits waits up to timeout ticks for any (or, with waitAll, every) bit in
// bits. It returns the value at the time the wait ended. With clearOnExit the
// awaited bits are cleared when the wait succeeds.
func (eg *EventGroup) WaitBits(c *Context, bits EventBits, clearOnExit, waitAll bool, timeout Ticks) EventBits {
	var seen EventBits
	c.Wait(func() bool {
		eg.mu.Lock()
		defer eg.mu.Unlock()
		seen = eg.bits
		match := seen&bits != 0
		if waitAll {
			match = seen&bits == bits
		}
		if match && clearOnExit {
			eg.bits &^= bits
		}
		return match || eg.deleted
	}, timeout)
	return seen
}

// StaticBuffers returns the control block of a static event group.
func (eg *EventGroup) StaticBuffers() (cb *heapcaps.Block, ok bool) {
	eg.mu.Lock()
	defer eg.mu.Unlock()
	if eg.deleted {
		return nil, false
	}
	_, cb, ok = eg.staticBuffers()
	return cb, ok
}

// Delete destroys the event group.
func (eg *EventGroup) Delete() {
	eg.mu.Lock()
	defer eg.mu.Unlock()
	if eg.deleted {
		return
	}
	eg.deleted = true
	eg.release(eg.k.heap)
}
