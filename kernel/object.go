package kernel

import (
	"encoding/binary"

	"rtcaps/heapcaps"
)

// objectTag is stamped into the first word of a control block while the
// object built on it is alive.
type objectTag uint32

const (
	tagTask          objectTag = 0x4b534154 // "TASK"
	tagQueue         objectTag = 0x55455551 // "QUEU"
	tagSemaphore     objectTag = 0x414d4553 // "SEMA"
	tagStreamBuffer  objectTag = 0x4d525453 // "STRM"
	tagMessageBuffer objectTag = 0x4247534d // "MSGB"
	tagEventGroup    objectTag = 0x47545645 // "EVTG"
)

// backing records the memory an object was built on.
type backing struct {
	cb     *heapcaps.Block
	data   *heapcaps.Block
	tag    objectTag
	static bool
}

func newBacking(tag objectTag, cb, data *heapcaps.Block) backing {
	binary.LittleEndian.PutUint32(cb.Bytes(), uint32(tag))
	return backing{cb: cb, data: data, tag: tag, static: true}
}

// staticBuffers returns the caller-supplied buffers of a live static object.
func (b *backing) staticBuffers() (data, cb *heapcaps.Block, ok bool) {
	if !b.static || b.cb == nil {
		return nil, nil, false
	}
	raw := b.cb.Bytes()
	if len(raw) < 4 || objectTag(binary.LittleEndian.Uint32(raw)) != b.tag {
		return nil, nil, false
	}
	return b.data, b.cb, true
}

// release unstamps the control block and frees kernel-owned memory.
func (b *backing) release(heap Allocator) {
	if b.cb == nil {
		return
	}
	if raw := b.cb.Bytes(); len(raw) >= 4 {
		clear(raw[:4])
	}
	if !b.static && heap != nil {
		heap.Free(b.data)
		heap.Free(b.cb)
	}
	b.cb, b.data = nil, nil
}

func checkControlBlock(cb *heapcaps.Block, size int) error {
	if cb == nil {
		return ErrInvalidParams
	}
	if cb.Len() < size {
		return ErrBufferTooSmall
	}
	return nil
}
