package withcaps

import (
	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

// CreateQueue creates a queue of length items of itemSize bytes whose control
// block and storage come from memory providing caps. A zero item size queue
// has no storage block.
func (l *Layer) CreateQueue(length, itemSize int, caps heapcaps.Caps) (*kernel.Queue, error) {
	storageSize, ok := mulSize(length, itemSize)
	if !ok || length <= 0 {
		return nil, l.invalidShape(kindQueue, "length and item size")
	}

	r := l.reserve()
	defer r.release()
	cb := r.alloc(kernel.SizeofStaticQueue, caps)
	var storage *heapcaps.Block
	if itemSize > 0 {
		storage = r.alloc(storageSize, caps)
	}
	if !r.ok() {
		return nil, l.outOfMemory(kindQueue, caps)
	}

	q, err := l.k.CreateQueueStatic(length, itemSize, storage, cb)
	if err != nil {
		return nil, l.constructorFailed(kindQueue, caps, err)
	}
	r.commit()
	l.created(kindQueue, caps)
	return q, nil
}

// DeleteQueue deletes a queue made by CreateQueue and frees its memory.
func (l *Layer) DeleteQueue(q *kernel.Queue) {
	storage, cb, ok := q.StaticBuffers()
	if !ok {
		l.fatal(nil, "queue has no capability buffers", zap.String("kind", kindQueue))
		return
	}
	q.Delete()
	l.heap.Free(cb)
	l.heap.Free(storage)
	l.deleted(kindQueue)
}
