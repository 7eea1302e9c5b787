package kernel

import (
	"sync"

	"rtcaps/heapcaps"
)

// SemaphoreKind selects the semaphore flavour.
type SemaphoreKind uint8

const (
	SemaphoreBinary SemaphoreKind = iota + 1
	SemaphoreCounting
	SemaphoreMutex
	SemaphoreRecursiveMutex
)

func (s SemaphoreKind) String() string {
	switch s {
	case SemaphoreBinary:
		return "binary"
	case SemaphoreCounting:
		return "counting"
	case SemaphoreMutex:
		return "mutex"
	case SemaphoreRecursiveMutex:
		return "recursive-mutex"
	default:
		return "unknown"
	}
}

// Semaphore is a binary or counting semaphore, or a (recursive) mutex.
// Semaphores have a control block only.
type Semaphore struct {
	k    *Kernel
	kind SemaphoreKind
	max  int

	mu sync.Mutex
	backing
	count   int
	holder  *Task
	depth   int
	deleted bool
}

// CreateSemaphoreStatic creates a semaphore on a caller-supplied control
// block. maxCount and initial are used by counting semaphores only; a
// binary semaphore starts empty and a mutex starts available.
func (k *Kernel) CreateSemaphoreStatic(kind SemaphoreKind, maxCount, initial int, cb *heapcaps.Block) (*Semaphore, error) {
	s := &Semaphore{k: k, kind: kind}
	switch kind {
	case SemaphoreBinary:
		s.max, s.count = 1, 0
	case SemaphoreCounting:
		if maxCount <= 0 || initial < 0 || initial > maxCount {
			return nil, ErrInvalidParams
		}
		s.max, s.count = maxCount, initial
	case SemaphoreMutex, SemaphoreRecursiveMutex:
		s.max, s.count = 1, 1
	default:
		return nil, ErrInvalidParams
	}
	if err := checkControlBlock(cb, SizeofStaticSemaphore); err != nil {
		return nil, err
	}
	s.backing = newBacking(tagSemaphore, cb, nil)
	return s, nil
}

// CreateSemaphore creates a semaphore on kernel-allocated memory.
func (k *Kernel) CreateSemaphore(kind SemaphoreKind, maxCount, initial int) (*Semaphore, error) {
	cb, _, err := k.allocDynamic(SizeofStaticSemaphore, 0)
	if err != nil {
		return nil, err
	}
	s, err := k.CreateSemaphoreStatic(kind, maxCount, initial, cb)
	if err != nil {
		k.freeDynamic(cb, nil)
		return nil, err
	}
	s.static = false
	return s, nil
}

// Kind returns the semaphore flavour.
func (s *Semaphore) Kind() SemaphoreKind { return s.kind }

func (s *Semaphore) isMutex() bool {
	return s.kind == SemaphoreMutex || s.kind == SemaphoreRecursiveMutex
}

// TryTake takes the semaphore without blocking. Mutexes record the calling
// task as holder; a recursive mutex may be taken again by its holder.
func (s *Semaphore) TryTake(c *Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return false
	}
	if s.isMutex() {
		var caller *Task
		if c != nil {
			caller = c.t
		}
		switch {
		case s.holder == nil && s.count == 1:
			s.holder, s.count, s.depth = caller, 0, 1
			return true
		case s.kind == SemaphoreRecursiveMutex && s.holder == caller && caller != nil:
			s.depth++
			return true
		}
		return false
	}
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Take waits up to timeout ticks for the semaphore.
func (s *Semaphore) Take(c *Context, timeout Ticks) bool {
	return c.Wait(func() bool { return s.TryTake(c) }, timeout)
}

// Give releases the semaphore. Only the holder may give a mutex.
func (s *Semaphore) Give(c *Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return false
	}
	if s.isMutex() {
		var caller *Task
		if c != nil {
			caller = c.t
		}
		if s.count == 1 || s.holder != caller {
			return false
		}
		s.depth--
		if s.depth == 0 {
			s.holder, s.count = nil, 1
		}
		return true
	}
	if s.count == s.max {
		return false
	}
	s.count++
	return true
}

// Count returns the current count; 1 for an available mutex.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Holder returns the task holding a mutex, or nil.
func (s *Semaphore) Holder() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

// StaticBuffers returns the control block of a static semaphore.
func (s *Semaphore) StaticBuffers() (cb *heapcaps.Block, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return nil, false
	}
	_, cb, ok = s.staticBuffers()
	return cb, ok
}

// Delete destroys the semaphore.
func (s *Semaphore) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return
	}
	s.deleted = true
	s.release(s.k.heap)
}
