package kernel

import (
	"runtime"

	"go.uber.org/zap"
)

// Context provides task-local access to kernel operations.
//
// Only the task that owns a Context may use it. Every method is a
// scheduling point.
type Context struct {
	t *Task
}

// Task returns the calling task.
func (c *Context) Task() *Task { return c.t }

// Kernel returns the kernel the calling task runs on.
func (c *Context) Kernel() *Kernel { return c.t.k }

// CoreID returns the core the calling task is running on.
func (c *Context) CoreID() CoreID {
	c.checkpoint()
	k := c.t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	return c.t.core
}

// Yield gives the core to another ready task of equal or higher priority.
func (c *Context) Yield() {
	c.checkpoint()
	k := c.t.k
	k.mu.Lock()
	k.switchOutLocked(c.t, Ready)
	k.mu.Unlock()
	c.t.await()
}

// Delay blocks the calling task for n ticks.
func (c *Context) Delay(n Ticks) {
	if n == 0 {
		c.Yield()
		return
	}
	c.checkpoint()
	k := c.t.k
	k.mu.Lock()
	now := k.ticks.Load()
	if n == MaxDelay || uint64(n) > ^uint64(0)-now {
		c.t.wakeTick = ^uint64(0)
	} else {
		c.t.wakeTick = now + uint64(n)
	}
	k.switchOutLocked(c.t, Blocked)
	k.mu.Unlock()
	c.t.await()
}

// Wait yields until cond holds or timeout ticks have passed. It reports
// whether cond held. A zero timeout polls once.
func (c *Context) Wait(cond func() bool, timeout Ticks) bool {
	start := c.t.k.Ticks()
	for {
		if cond() {
			return true
		}
		if timeout == 0 || (timeout != MaxDelay && c.t.k.Ticks()-start >= uint64(timeout)) {
			return false
		}
		c.Yield()
	}
}

// Suspend suspends target, or the calling task when target is nil.
//
// A task running on another core keeps running until its next scheduling
// point; TaskState reports Running until then. Suspending the calling task
// returns only once another task resumes it.
func (c *Context) Suspend(target *Task) {
	c.checkpoint()
	k := c.t.k
	if target == nil || target == c.t {
		k.mu.Lock()
		k.switchOutLocked(c.t, Suspended)
		k.mu.Unlock()
		c.t.await()
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.log.Debug("suspending task",
		zap.String("task", target.name),
		zap.String("by", c.t.name),
		zap.String("state", target.state.String()))
	switch target.state {
	case Running:
		target.suspendPending = true
	case Ready, Blocked:
		k.ready = without(k.ready, target)
		k.delayed = without(k.delayed, target)
		target.state = Suspended
	}
}

// Resume makes a suspended task ready again, or cancels a pending suspension.
func (c *Context) Resume(target *Task) {
	c.checkpoint()
	if target == nil {
		return
	}
	k := c.t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	switch target.state {
	case Suspended:
		target.state = Ready
		k.ready = append(k.ready, target)
		k.dispatchLocked()
	case Running:
		target.suspendPending = false
	}
}

// Delete deletes target, or the calling task when target is nil.
//
// A task that deletes itself never returns from Delete; the idle step frees
// its memory if the kernel allocated it. A task running on another core is
// deleted at its next scheduling point.
func (c *Context) Delete(target *Task) {
	c.checkpoint()
	k := c.t.k
	if target == nil || target == c.t {
		k.mu.Lock()
		k.exitLocked(c.t)
		k.mu.Unlock()
		runtime.Goexit()
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	switch target.state {
	case Deleted, Invalid:
	case Running:
		target.deletePending = true
	default:
		k.deleteStoppedLocked(target)
	}
}

// DeleteStopped deletes target only if it holds no core, and reports whether
// it did. The state is checked under the scheduler lock, so a target
// dispatched after the caller last looked is left running and untouched.
func (c *Context) DeleteStopped(target *Task) bool {
	c.checkpoint()
	if target == nil || target == c.t {
		return false
	}
	k := c.t.k
	k.mu.Lock()
	defer k.mu.Unlock()
	switch target.state {
	case Running, Deleted, Invalid:
		return false
	}
	k.deleteStoppedLocked(target)
	return true
}

// checkpoint applies pending deletion, suspension and preemption.
func (c *Context) checkpoint() {
	t := c.t
	k := t.k
	for {
		k.mu.Lock()
		switch {
		case t.deletePending:
			k.exitLocked(t)
			k.mu.Unlock()
			runtime.Goexit()
		case k.halted:
			k.mu.Unlock()
			<-t.exit
			runtime.Goexit()
		case t.suspendPending:
			t.suspendPending = false
			k.switchOutLocked(t, Suspended)
		case k.preemptsLocked(t):
			k.switchOutLocked(t, Ready)
		default:
			k.mu.Unlock()
			return
		}
		k.mu.Unlock()
		t.await()
	}
}
