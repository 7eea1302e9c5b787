package kernel

import (
	"fmt"
	"runtime"

	"rtcaps/heapcaps"
)

// State is the scheduler's view of a task.
type State uint8

const (
	Invalid State = iota
	Running
	Ready
	Blocked
	Suspended
	Deleted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Suspended:
		return "suspended"
	case Deleted:
		return "deleted"
	default:
		return "invalid"
	}
}

// TaskFunc is the body of a task. A dynamic task that returns is deleted and
// reclaimed by the idle reap. A static task must delete itself instead: the
// kernel cannot free memory it does not own, so returning aborts.
type TaskFunc func(c *Context)

// Task is a kernel task handle.
type Task struct {
	k          *Kernel
	id         uint32
	name       string
	priority   int
	affinity   CoreID
	stackDepth int
	fn         TaskFunc

	// Guarded by k.mu.
	backing
	state          State
	core           CoreID
	suspendPending bool
	deletePending  bool
	wakeTick       uint64
	stopped        bool

	run  chan struct{}
	exit chan struct{}
}

// ID returns the task number, unique per kernel.
func (t *Task) ID() uint32 { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Priority returns the task priority.
func (t *Task) Priority() int { return t.priority }

// Affinity returns the core the task is pinned to, or NoAffinity.
func (t *Task) Affinity() CoreID { return t.affinity }

// StackDepth returns the stack size in bytes.
func (t *Task) StackDepth() int { return t.stackDepth }

// State returns the task's run state.
func (t *Task) State() State { return t.k.TaskState(t) }

func (t *Task) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

// StaticBuffers returns the stack and control block a static task was built
// on. ok is false for dynamic or deleted tasks.
func (t *Task) StaticBuffers() (stack, tcb *heapcaps.Block, ok bool) {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	if t.state == Deleted {
		return nil, nil, false
	}
	return t.staticBuffers()
}

func (t *Task) canRunOn(core CoreID) bool {
	return t.affinity == NoAffinity || t.affinity == core
}

// stop releases the task goroutine if it is parked. Caller holds k.mu.
func (t *Task) stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.exit)
}

func (t *Task) main() {
	defer func() {
		if r := recover(); r != nil {
			t.k.Abort(&Context{t: t}, fmt.Sprintf("task %s panicked: %v", t, r))
		}
	}()
	t.await()
	t.fn(&Context{t: t})
	if t.static {
		t.k.Abort(&Context{t: t}, fmt.Sprintf("static task %s returned from its function", t))
	}
	t.k.mu.Lock()
	t.k.exitLocked(t)
	t.k.mu.Unlock()
}

// await parks the goroutine until the scheduler hands it a core.
func (t *Task) await() {
	select {
	case <-t.run:
	case <-t.exit:
		runtime.Goexit()
	}
}

// CreateTaskStatic creates a task on caller-supplied stack and control block.
func (k *Kernel) CreateTaskStatic(fn TaskFunc, name string, stackDepth, priority int, stack, tcb *heapcaps.Block, core CoreID) (*Task, error) {
	if err := k.checkTaskParams(fn, stackDepth, priority, core); err != nil {
		return nil, err
	}
	if stack == nil {
		return nil, ErrInvalidParams
	}
	if err := checkControlBlock(tcb, SizeofStaticTask); err != nil {
		return nil, err
	}
	if stack.Len() < stackDepth {
		return nil, ErrBufferTooSmall
	}
	t := k.newTask(fn, name, stackDepth, priority, core)
	t.backing = newBacking(tagTask, tcb, stack)
	k.addTask(t)
	return t, nil
}

// CreateTask creates a task whose stack and control block the kernel allocates.
func (k *Kernel) CreateTask(fn TaskFunc, name string, stackDepth, priority int, core CoreID) (*Task, error) {
	if err := k.checkTaskParams(fn, stackDepth, priority, core); err != nil {
		return nil, err
	}
	tcb, stack, err := k.allocDynamic(SizeofStaticTask, stackDepth)
	if err != nil {
		return nil, err
	}
	t := k.newTask(fn, name, stackDepth, priority, core)
	t.backing = newBacking(tagTask, tcb, stack)
	t.static = false
	k.addTask(t)
	return t, nil
}

func (k *Kernel) checkTaskParams(fn TaskFunc, stackDepth, priority int, core CoreID) error {
	switch {
	case fn == nil, stackDepth <= 0:
		return ErrInvalidParams
	case priority < 0 || priority >= k.maxPrio:
		return fmt.Errorf("%w: priority %d", ErrInvalidParams, priority)
	case core != NoAffinity && (core < 0 || int(core) >= k.numCores):
		return fmt.Errorf("%w: core %d", ErrInvalidParams, core)
	}
	return nil
}

func (k *Kernel) newTask(fn TaskFunc, name string, stackDepth, priority int, core CoreID) *Task {
	return &Task{
		k:          k,
		name:       name,
		priority:   priority,
		affinity:   core,
		stackDepth: stackDepth,
		fn:         fn,
		core:       noCore,
		run:        make(chan struct{}, 1),
		exit:       make(chan struct{}),
	}
}
