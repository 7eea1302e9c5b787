package withcaps

import (
	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

// RescuerName is the name of the short-lived task that reclaims a task which
// deleted itself.
const RescuerName = "taskDeleteWithCaps"

// deletePath is how DeleteTask reclaims a task.
type deletePath uint8

const (
	// pathSelf: the caller deletes itself. A rescuer task reclaims it once
	// it has suspended.
	pathSelf deletePath = iota + 1
	// pathCrossCore: the target runs on another core. It is suspended and
	// waited for before it is reclaimed.
	pathCrossCore
	// pathStopped: the target holds no core and is reclaimed directly.
	pathStopped
)

func (p deletePath) String() string {
	switch p {
	case pathSelf:
		return "self"
	case pathCrossCore:
		return "cross-core"
	case pathStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// selectDeletePath picks exactly one path for every combination of caller,
// target run state and core count. A running target that is not the caller
// can only exist with more than one core.
func selectDeletePath(self bool, state kernel.State, cores int) deletePath {
	switch {
	case self:
		return pathSelf
	case cores > 1 && state == kernel.Running:
		return pathCrossCore
	default:
		return pathStopped
	}
}

// CreateTask creates a task that may run on any core. Its stack comes from
// memory providing caps; its control block always comes from internal RAM.
func (l *Layer) CreateTask(fn kernel.TaskFunc, name string, stackDepth, priority int, caps heapcaps.Caps) (*kernel.Task, error) {
	return l.CreateTaskPinnedToCore(fn, name, stackDepth, priority, kernel.NoAffinity, caps)
}

// CreateTaskPinnedToCore creates a task pinned to core, or free to run on any
// core with kernel.NoAffinity.
func (l *Layer) CreateTaskPinnedToCore(fn kernel.TaskFunc, name string, stackDepth, priority int, core kernel.CoreID, caps heapcaps.Caps) (*kernel.Task, error) {
	if stackDepth <= 0 {
		return nil, l.invalidShape(kindTask, "stack depth")
	}

	r := l.reserve()
	defer r.release()
	tcb := r.alloc(kernel.SizeofStaticTask, heapcaps.KernelCaps)
	stack := r.alloc(stackDepth, caps)
	if !r.ok() {
		return nil, l.outOfMemory(kindTask, caps)
	}

	t, err := l.k.CreateTaskStatic(fn, name, stackDepth, priority, stack, tcb, core)
	if err != nil {
		return nil, l.constructorFailed(kindTask, caps, err)
	}
	r.commit()
	l.created(kindTask, caps)
	return t, nil
}

// DeleteTask deletes a task made by this layer and frees its memory. A nil
// target, or the calling task itself, deletes the caller: DeleteTask then
// never returns.
//
// At most one deletion of a given task may be in flight.
func (l *Layer) DeleteTask(c *kernel.Context, target *kernel.Task) {
	if c == nil {
		l.fatal(nil, "task deletion requested outside a task")
		return
	}
	self := target == nil || target == c.Task()
	if self {
		target = c.Task()
	}
	state := l.k.TaskState(target)
	path := selectDeletePath(self, state, l.k.NumCores())

	l.metrics.taskDeleted(path)
	l.log.Debug("deleting task",
		zap.String("task", target.Name()),
		zap.Uint32("id", target.ID()),
		zap.String("state", state.String()),
		zap.String("path", path.String()))

	switch path {
	case pathSelf:
		l.deleteSelf(c)
	case pathCrossCore:
		l.deleteRunning(c, target)
	default:
		l.deleteStopped(c, target)
	}
}

func (l *Layer) deleteSelf(c *kernel.Context) {
	me := c.Task()
	_, err := l.k.CreateTask(func(rc *kernel.Context) {
		if !l.reclaim(rc, me) {
			l.fatal(rc, "task to delete is running", zap.String("task", me.Name()))
		}
		rc.Delete(nil)
	}, RescuerName, kernel.MinimalStackSize, me.Priority(), c.CoreID())
	if err != nil {
		l.fatal(c, "failed to create the task to delete the current task",
			zap.String("task", me.Name()),
			zap.Error(err))
		return
	}

	// The rescuer reclaims this task while it is suspended.
	c.Suspend(nil)

	l.fatal(c, "failed to suspend the task to be deleted", zap.String("task", me.Name()))
}

func (l *Layer) deleteRunning(c *kernel.Context, target *kernel.Task) {
	c.Suspend(target)
	for l.k.TaskState(target) == kernel.Running {
		c.Yield()
	}
	if !l.reclaim(c, target) {
		l.fatal(c, "task to delete is running", zap.String("task", target.Name()))
	}
}

// deleteStopped falls back to suspending target when another core
// dispatched it after its state was read.
func (l *Layer) deleteStopped(c *kernel.Context, target *kernel.Task) {
	if l.reclaim(c, target) {
		return
	}
	l.log.Debug("task dispatched before deletion", zap.String("task", target.Name()))
	l.deleteRunning(c, target)
}

// reclaim deletes a task that holds no core and frees its memory. It
// reports false, freeing nothing, when target is running.
func (l *Layer) reclaim(c *kernel.Context, target *kernel.Task) bool {
	stack, tcb, ok := target.StaticBuffers()
	if !ok || stack == nil || tcb == nil {
		l.fatal(c, "task has no capability buffers", zap.String("task", target.Name()))
		return false
	}
	if !c.DeleteStopped(target) {
		return false
	}
	l.heap.Free(stack)
	l.heap.Free(tcb)
	l.deleted(kindTask)
	return true
}
