package kernel

import (
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ExitAbort is the process exit status used when no abort handler is installed.
const ExitAbort = 134

// AbortInfo describes an unrecoverable invariant violation.
type AbortInfo struct {
	TaskID uint32
	Task   string
	Core   CoreID
	Reason string
	Stack  []byte
}

type abortState struct {
	active  atomic.Bool
	once    sync.Once
	handler atomic.Value // func(AbortInfo)
}

// InPanicMode reports whether the kernel has aborted.
func (k *Kernel) InPanicMode() bool {
	return k.abort.active.Load()
}

// SetAbortHandler installs the handler run on the first abort.
//
// The handler is invoked at most once per kernel. It must not panic. Without
// a handler, an abort logs the report and exits the process with ExitAbort.
func (k *Kernel) SetAbortHandler(fn func(AbortInfo)) {
	k.abort.handler.Store(fn)
}

// Abort stops the system on an invariant violation. c may be nil when the
// caller is not a task. Abort never returns: the scheduler stops
// dispatching and the calling goroutine exits after the handler ran.
func (k *Kernel) Abort(c *Context, reason string) {
	info := AbortInfo{Core: noCore, Reason: reason}
	if c != nil && c.t != nil {
		info.TaskID = c.t.id
		info.Task = c.t.name
		k.mu.Lock()
		info.Core = c.t.core
		k.mu.Unlock()
	}
	k.triggerAbort(info)
	runtime.Goexit()
}

func (k *Kernel) triggerAbort(info AbortInfo) {
	k.abort.once.Do(func() {
		k.abort.active.Store(true)
		k.mu.Lock()
		k.halted = true
		k.mu.Unlock()

		info.Stack = debug.Stack()
		if v := k.abort.handler.Load(); v != nil {
			if fn, ok := v.(func(AbortInfo)); ok && fn != nil {
				fn(info)
				return
			}
		}

		k.log.Error("abort",
			zap.String("reason", info.Reason),
			zap.String("task", info.Task),
			zap.Uint32("task_id", info.TaskID),
			zap.Int32("core", int32(info.Core)),
			zap.ByteString("stack", info.Stack))
		_ = k.log.Sync()
		os.Exit(ExitAbort)
	})
}
