package kernel

import (
	"sync"

	"rtcaps/heapcaps"
)

// Queue is a fixed-length FIFO of fixed-size items stored in its data buffer.
// A queue with a zero item size carries no data, only a count.
type Queue struct {
	k        *Kernel
	length   int
	itemSize int

	mu sync.Mutex
	backing
	head    int
	count   int
	deleted bool
}

// CreateQueueStatic creates a queue on caller-supplied buffers. storage must
// be nil exactly when itemSize is zero.
func (k *Kernel) CreateQueueStatic(length, itemSize int, storage, cb *heapcaps.Block) (*Queue, error) {
	if length <= 0 || itemSize < 0 {
		return nil, ErrInvalidParams
	}
	if err := checkControlBlock(cb, SizeofStaticQueue); err != nil {
		return nil, err
	}
	if (itemSize == 0) != (storage == nil) {
		return nil, ErrInvalidParams
	}
	if storage != nil && storage.Len() < length*itemSize {
		return nil, ErrBufferTooSmall
	}
	return &Queue{
		k:        k,
		length:   length,
		itemSize: itemSize,
		backing:  newBacking(tagQueue, cb, storage),
	}, nil
}

// CreateQueue creates a queue on kernel-allocated memory.
func (k *Kernel) CreateQueue(length, itemSize int) (*Queue, error) {
	if length <= 0 || itemSize < 0 {
		return nil, ErrInvalidParams
	}
	cb, storage, err := k.allocDynamic(SizeofStaticQueue, length*itemSize)
	if err != nil {
		return nil, err
	}
	q, err := k.CreateQueueStatic(length, itemSize, storage, cb)
	if err != nil {
		k.freeDynamic(cb, storage)
		return nil, err
	}
	q.static = false
	return q, nil
}

// Length returns the queue capacity in items.
func (q *Queue) Length() int { return q.length }

// ItemSize returns the size of one item in bytes.
func (q *Queue) ItemSize() int { return q.itemSize }

// TrySend copies one item to the back of the queue without blocking.
func (q *Queue) TrySend(item []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleted || q.count == q.length || len(item) < q.itemSize {
		return false
	}
	if q.itemSize > 0 {
		slot := (q.head + q.count) % q.length
		copy(q.data.Bytes()[slot*q.itemSize:], item[:q.itemSize])
	}
	q.count++
	return true
}

// TryReceive copies the front item into dst without blocking.
func (q *Queue) TryReceive(dst []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleted || q.count == 0 || len(dst) < q.itemSize {
		return false
	}
	if q.itemSize > 0 {
		off := q.head * q.itemSize
		copy(dst, q.data.Bytes()[off:off+q.itemSize])
	}
	q.head = (q.head + 1) % q.length
	q.count--
	return true
}

// Send waits up to timeout ticks for space, then sends item.
func (q *Queue) Send(c *Context, item []byte, timeout Ticks) bool {
	return c.Wait(func() bool { return q.TrySend(item) }, timeout)
}

// Receive waits up to timeout ticks for an item.
func (q *Queue) Receive(c *Context, dst []byte, timeout Ticks) bool {
	return c.Wait(func() bool { return q.TryReceive(dst) }, timeout)
}

// MessagesWaiting returns the number of queued items.
func (q *Queue) MessagesWaiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// SpacesAvailable returns the number of free slots.
func (q *Queue) SpacesAvailable() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length - q.count
}

// StaticBuffers returns the storage and control block of a static queue.
// storage is nil for a zero item size queue.
func (q *Queue) StaticBuffers() (storage, cb *heapcaps.Block, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleted {
		return nil, nil, false
	}
	return q.staticBuffers()
}

// Delete destroys the queue. Memory the kernel allocated is freed; static
// buffers remain the caller's.
func (q *Queue) Delete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleted {
		return
	}
	q.deleted = true
	q.release(q.k.heap)
}
