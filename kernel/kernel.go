// Package kernel is a preemptive, multi-core, statically-allocatable RTOS
// kernel simulated on goroutines.
//
// A task runs only while it holds a core. Cores are handed to the highest
// priority ready task whose affinity allows the core, FIFO within a priority.
// Every Context call is a scheduling point: pending suspensions and deletions
// requested from other cores take effect there, and a higher priority ready
// task preempts the caller there.
//
// Every object can be created statically, from buffers supplied by the
// caller, or dynamically, from memory the kernel allocates itself. The
// buffers behind a static object can be recovered with StaticBuffers until
// the object is deleted. The kernel never frees static buffers.
package kernel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rtcaps/heapcaps"
)

// CoreID identifies an execution core.
type CoreID int32

// NoAffinity lets a task run on any core.
const NoAffinity CoreID = 0x7fffffff

const noCore CoreID = -1

// Ticks is a duration in kernel ticks.
type Ticks uint64

// MaxDelay waits forever.
const MaxDelay = ^Ticks(0)

const (
	DefaultMaxPriorities = 25
	MinimalStackSize     = 768

	SizeofStaticTask         = 352
	SizeofStaticQueue        = 84
	SizeofStaticSemaphore    = SizeofStaticQueue
	SizeofStaticStreamBuffer = 36
	SizeofStaticEventGroup   = 32
)

var (
	ErrInvalidParams  = errors.New("kernel: invalid parameters")
	ErrBufferTooSmall = errors.New("kernel: static buffer too small")
	ErrNoMemory       = errors.New("kernel: out of memory")
)

// Allocator is the memory the kernel uses for dynamically created objects.
type Allocator interface {
	Malloc(size int, caps heapcaps.Caps) *heapcaps.Block
	Free(b *heapcaps.Block)
}

// Config configures a kernel instance.
type Config struct {
	Cores         int
	MaxPriorities int
	Heap          Allocator
	Logger        *zap.Logger
}

// Kernel is the scheduler plus its object constructors.
type Kernel struct {
	numCores int
	maxPrio  int
	heap     Allocator
	log      *zap.Logger

	mu          sync.Mutex
	running     []*Task // per core
	ready       []*Task
	delayed     []*Task
	terminating []*Task
	tasks       []*Task // live tasks in creation order
	nextID      uint32
	halted      bool

	ticks atomic.Uint64

	abort abortState
}

// New creates a kernel instance.
func New(cfg Config) *Kernel {
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	if cfg.MaxPriorities <= 0 {
		cfg.MaxPriorities = DefaultMaxPriorities
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Kernel{
		numCores: cfg.Cores,
		maxPrio:  cfg.MaxPriorities,
		heap:     cfg.Heap,
		log:      cfg.Logger.Named("kernel"),
		running:  make([]*Task, cfg.Cores),
	}
}

// NumCores returns the number of execution cores.
func (k *Kernel) NumCores() int { return k.numCores }

// MaxPriorities returns the number of task priorities.
func (k *Kernel) MaxPriorities() int { return k.maxPrio }

// Ticks returns the current tick count.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// Tick advances the tick count by one and readies tasks whose delay expired.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.ticks.Add(1)
	kept := k.delayed[:0]
	for _, t := range k.delayed {
		if t.wakeTick <= now {
			t.state = Ready
			k.ready = append(k.ready, t)
			continue
		}
		kept = append(kept, t)
	}
	clear(k.delayed[len(kept):])
	k.delayed = kept
	k.dispatchLocked()
}

// StartTick calls Tick every period until ctx is done.
func (k *Kernel) StartTick(ctx context.Context, period time.Duration) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				k.Tick()
			}
		}
	}()
}

// Tasks returns the live tasks in creation order.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Task(nil), k.tasks...)
}

// TaskState returns the run state of t.
func (k *Kernel) TaskState(t *Task) State {
	if t == nil {
		return Invalid
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.state
}

// Shutdown stops the scheduler and terminates every parked task goroutine.
// Tasks still holding a core stop at their next scheduling point.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.halted = true
	for _, t := range k.tasks {
		if t.state == Running {
			t.deletePending = true
			continue
		}
		t.stop()
	}
	for _, t := range k.terminating {
		t.stop()
	}
}

func (k *Kernel) addTask(t *Task) {
	go t.main()

	k.mu.Lock()
	k.nextID++
	t.id = k.nextID
	k.tasks = append(k.tasks, t)
	t.state = Ready
	k.ready = append(k.ready, t)
	k.dispatchLocked()
	k.mu.Unlock()

	k.log.Debug("task created",
		zap.String("task", t.name),
		zap.Uint32("id", t.id),
		zap.Int("priority", t.priority),
		zap.Int32("affinity", int32(t.affinity)),
		zap.Bool("static", t.static))
}

// dispatchLocked hands every idle core to the best eligible ready task.
// A core left idle runs the idle step, which reclaims terminated tasks.
func (k *Kernel) dispatchLocked() {
	if k.halted {
		return
	}
	idle := false
	for i, cur := range k.running {
		if cur != nil {
			continue
		}
		t := k.takeReadyLocked(CoreID(i))
		if t == nil {
			idle = true
			continue
		}
		t.state = Running
		t.core = CoreID(i)
		k.running[i] = t
		t.run <- struct{}{}
	}
	if idle {
		k.reapLocked()
	}
}

func (k *Kernel) takeReadyLocked(core CoreID) *Task {
	best := -1
	for i, t := range k.ready {
		if !t.canRunOn(core) {
			continue
		}
		if best < 0 || t.priority > k.ready[best].priority {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	t := k.ready[best]
	k.ready = append(k.ready[:best], k.ready[best+1:]...)
	return t
}

// preemptsLocked reports whether a ready task outranks t on t's core.
func (k *Kernel) preemptsLocked(t *Task) bool {
	for _, r := range k.ready {
		if r.priority > t.priority && r.canRunOn(t.core) {
			return true
		}
	}
	return false
}

// switchOutLocked takes the core away from the running task t and parks it in next.
func (k *Kernel) switchOutLocked(t *Task, next State) {
	k.running[t.core] = nil
	t.core = noCore
	t.state = next
	switch next {
	case Ready:
		k.ready = append(k.ready, t)
	case Blocked:
		k.delayed = append(k.delayed, t)
	}
	k.dispatchLocked()
}

// exitLocked deletes the running task t from its own context. Its memory is
// reclaimed later by the idle step.
func (k *Kernel) exitLocked(t *Task) {
	k.running[t.core] = nil
	t.core = noCore
	t.state = Deleted
	t.deletePending = false
	k.forgetLocked(t)
	k.terminating = append(k.terminating, t)
	k.dispatchLocked()
	k.log.Debug("task self-deleted", zap.String("task", t.name), zap.Uint32("id", t.id))
}

// deleteStoppedLocked deletes a task that does not hold a core.
func (k *Kernel) deleteStoppedLocked(t *Task) {
	k.ready = without(k.ready, t)
	k.delayed = without(k.delayed, t)
	k.forgetLocked(t)
	t.state = Deleted
	t.release(k.heap)
	t.stop()
	k.log.Debug("task deleted", zap.String("task", t.name), zap.Uint32("id", t.id))
}

func (k *Kernel) forgetLocked(t *Task) {
	k.tasks = without(k.tasks, t)
}

// reapLocked is the idle step: it drops terminated tasks and frees the memory
// the kernel allocated for them. Buffers of static tasks are not the
// kernel's and stay allocated.
func (k *Kernel) reapLocked() {
	for _, t := range k.terminating {
		t.release(k.heap)
	}
	clear(k.terminating)
	k.terminating = k.terminating[:0]
}

func (k *Kernel) allocDynamic(cbSize, dataSize int) (cb, data *heapcaps.Block, err error) {
	if k.heap == nil {
		return nil, nil, ErrNoMemory
	}
	cb = k.heap.Malloc(cbSize, heapcaps.KernelCaps)
	if cb == nil {
		return nil, nil, ErrNoMemory
	}
	if dataSize > 0 {
		data = k.heap.Malloc(dataSize, heapcaps.KernelCaps)
		if data == nil {
			k.heap.Free(cb)
			return nil, nil, ErrNoMemory
		}
	}
	return cb, data, nil
}

func (k *Kernel) freeDynamic(cb, data *heapcaps.Block) {
	k.heap.Free(data)
	k.heap.Free(cb)
}

func without(list []*Task, t *Task) []*Task {
	for i, x := range list {
		if x == t {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1]
		}
	}
	return list
}
