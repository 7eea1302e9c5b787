// Package withcaps creates kernel objects on memory chosen by capability and
// reclaims that memory when the objects are deleted.
//
// Every object is built with the kernel's static constructors on blocks the
// layer allocates from a capability heap, so the kernel never deals with
// capability memory itself. Create failures are returned as errors and leave
// nothing allocated. Inconsistencies found while deleting (a handle without
// recoverable buffers, a task that should be stopped but is running) abort
// the kernel instead.
package withcaps

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

var (
	// ErrOutOfCapableMemory reports that no region providing the requested
	// capabilities had room for a block.
	ErrOutOfCapableMemory = errors.New("withcaps: out of capable memory")
	// ErrConstructorFailed wraps the kernel's rejection of an object.
	ErrConstructorFailed = errors.New("withcaps: static constructor failed")
	// ErrInvalidShape reports sizes that cannot describe an object.
	ErrInvalidShape = errors.New("withcaps: invalid object shape")
)

const (
	kindTask          = "task"
	kindQueue         = "queue"
	kindSemaphore     = "semaphore"
	kindStreamBuffer  = "stream_buffer"
	kindMessageBuffer = "message_buffer"
	kindEventGroup    = "event_group"
)

// Allocator is a capability heap.
type Allocator interface {
	Malloc(size int, caps heapcaps.Caps) *heapcaps.Block
	Free(b *heapcaps.Block)
}

// Config configures a Layer.
type Config struct {
	Kernel  *kernel.Kernel
	Heap    Allocator
	Logger  *zap.Logger
	Metrics *Metrics
}

// Layer pairs capability allocation with kernel object lifecycles.
type Layer struct {
	k       *kernel.Kernel
	heap    Allocator
	log     *zap.Logger
	metrics *Metrics
}

// New creates a Layer. Kernel and Heap are required.
func New(cfg Config) *Layer {
	if cfg.Kernel == nil || cfg.Heap == nil {
		panic("withcaps: kernel and heap are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Layer{
		k:       cfg.Kernel,
		heap:    cfg.Heap,
		log:     cfg.Logger.Named("withcaps"),
		metrics: cfg.Metrics,
	}
}

// Kernel returns the kernel objects are created on.
func (l *Layer) Kernel() *kernel.Kernel { return l.k }

func (l *Layer) outOfMemory(kind string, caps heapcaps.Caps) error {
	l.metrics.failed(kind, "out_of_memory")
	l.log.Debug("create failed",
		zap.String("kind", kind),
		zap.Stringer("caps", caps),
		zap.String("reason", "out_of_memory"))
	return fmt.Errorf("%w: %s with caps %s", ErrOutOfCapableMemory, kind, caps)
}

func (l *Layer) constructorFailed(kind string, caps heapcaps.Caps, err error) error {
	l.metrics.failed(kind, "constructor")
	l.log.Debug("create failed",
		zap.String("kind", kind),
		zap.Stringer("caps", caps),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrConstructorFailed, kind, err)
}

func (l *Layer) invalidShape(kind, detail string) error {
	l.metrics.failed(kind, "invalid_shape")
	return fmt.Errorf("%w: %s: %s", ErrInvalidShape, kind, detail)
}

func (l *Layer) created(kind string, caps heapcaps.Caps) {
	l.metrics.created(kind)
	l.log.Debug("created", zap.String("kind", kind), zap.Stringer("caps", caps))
}

func (l *Layer) deleted(kind string) {
	l.metrics.deleted(kind)
	l.log.Debug("deleted", zap.String("kind", kind))
}

// fatal logs and aborts. c is nil when the caller is not a task.
func (l *Layer) fatal(c *kernel.Context, reason string, fields ...zap.Field) {
	l.log.Error(reason, fields...)
	l.k.Abort(c, reason)
}

// mulSize multiplies two non-negative sizes, reporting overflow.
func mulSize(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt/a {
		return 0, false
	}
	return a * b, true
}
