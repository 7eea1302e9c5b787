package kernel

import (
	"encoding/binary"
	"sync"

	"rtcaps/heapcaps"
)

// MessageLengthBytes is the per-message length header of a message buffer.
const MessageLengthBytes = 4

// StreamBuffer is a byte ring in its storage buffer. As a message buffer it
// carries discrete length-prefixed messages instead of a byte stream.
type StreamBuffer struct {
	k         *Kernel
	size      int
	trigger   int
	isMessage bool

	mu sync.Mutex
	backing
	head    int
	used    int
	deleted bool
}

// CreateStreamBufferStatic creates a stream buffer on caller-supplied
// buffers. A zero trigger level means 1.
func (k *Kernel) CreateStreamBufferStatic(size, trigger int, storage, cb *heapcaps.Block) (*StreamBuffer, error) {
	if trigger == 0 {
		trigger = 1
	}
	if size <= 0 || trigger < 0 || trigger > size {
		return nil, ErrInvalidParams
	}
	return k.newStreamBuffer(size, trigger, false, storage, cb)
}

// CreateMessageBufferStatic creates a message buffer on caller-supplied buffers.
func (k *Kernel) CreateMessageBufferStatic(size int, storage, cb *heapcaps.Block) (*StreamBuffer, error) {
	if size <= MessageLengthBytes {
		return nil, ErrInvalidParams
	}
	return k.newStreamBuffer(size, 1, true, storage, cb)
}

func (k *Kernel) newStreamBuffer(size, trigger int, isMessage bool, storage, cb *heapcaps.Block) (*StreamBuffer, error) {
	if storage == nil {
		return nil, ErrInvalidParams
	}
	if err := checkControlBlock(cb, SizeofStaticStreamBuffer); err != nil {
		return nil, err
	}
	if storage.Len() < size {
		return nil, ErrBufferTooSmall
	}
	tag := tagStreamBuffer
	if isMessage {
		tag = tagMessageBuffer
	}
	return &StreamBuffer{
		k:         k,
		size:      size,
		trigger:   trigger,
		isMessage: isMessage,
		backing:   newBacking(tag, cb, storage),
	}, nil
}

// CreateStreamBuffer creates a stream buffer on kernel-allocated memory.
func (k *Kernel) CreateStreamBuffer(size, trigger int) (*StreamBuffer, error) {
	return k.createStreamBufferDynamic(size, func(storage, cb *heapcaps.Block) (*StreamBuffer, error) {
		return k.CreateStreamBufferStatic(size, trigger, storage, cb)
	})
}

// CreateMessageBuffer creates a message buffer on kernel-allocated memory.
func (k *Kernel) CreateMessageBuffer(size int) (*StreamBuffer, error) {
	return k.createStreamBufferDynamic(size, func(storage, cb *heapcaps.Block) (*StreamBuffer, error) {
		return k.CreateMessageBufferStatic(size, storage, cb)
	})
}

func (k *Kernel) createStreamBufferDynamic(size int, construct func(storage, cb *heapcaps.Block) (*StreamBuffer, error)) (*StreamBuffer, error) {
	if size <= 0 {
		return nil, ErrInvalidParams
	}
	cb, storage, err := k.allocDynamic(SizeofStaticStreamBuffer, size)
	if err != nil {
		return nil, err
	}
	sb, err := construct(storage, cb)
	if err != nil {
		k.freeDynamic(cb, storage)
		return nil, err
	}
	sb.static = false
	return sb, nil
}

// IsMessageBuffer reports whether sb carries discrete messages.
func (sb *StreamBuffer) IsMessageBuffer() bool { return sb.isMessage }

// Size returns the capacity in bytes.
func (sb *StreamBuffer) Size() int { return sb.size }

// TriggerLevel returns the number of bytes a blocked reader waits for.
func (sb *StreamBuffer) TriggerLevel() int { return sb.trigger }

// TrySend writes p without blocking. A stream buffer writes as many bytes as
// fit; a message buffer writes the whole message or nothing.
func (sb *StreamBuffer) TrySend(p []byte) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.deleted {
		return 0
	}
	free := sb.size - sb.used
	if sb.isMessage {
		if len(p) == 0 || len(p)+MessageLengthBytes > free {
			return 0
		}
		var hdr [MessageLengthBytes]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
		sb.write(hdr[:])
		sb.write(p)
		return len(p)
	}
	n := min(len(p), free)
	sb.write(p[:n])
	return n
}

// TryReceive reads into dst without blocking. A message buffer returns one
// whole message, or 0 if the next message does not fit in dst.
func (sb *StreamBuffer) TryReceive(dst []byte) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.deleted || sb.used == 0 {
		return 0
	}
	if sb.isMessage {
		n := sb.nextMessageLen()
		if n > len(dst) {
			return 0
		}
		sb.read(make([]byte, MessageLengthBytes))
		sb.read(dst[:n])
		return n
	}
	n := min(len(dst), sb.used)
	sb.read(dst[:n])
	return n
}

// Send waits up to timeout ticks until p can be written, then writes it.
func (sb *StreamBuffer) Send(c *Context, p []byte, timeout Ticks) int {
	var n int
	c.Wait(func() bool {
		n = sb.TrySend(p)
		return n > 0 || len(p) == 0
	}, timeout)
	return n
}

// Receive waits up to timeout ticks for the trigger level (or one message),
// then reads into dst.
func (sb *StreamBuffer) Receive(c *Context, dst []byte, timeout Ticks) int {
	c.Wait(func() bool {
		sb.mu.Lock()
		defer sb.mu.Unlock()
		return sb.deleted || sb.used >= sb.trigger
	}, timeout)
	return sb.TryReceive(dst)
}

// BytesAvailable returns the number of stored bytes, headers included.
func (sb *StreamBuffer) BytesAvailable() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.used
}

// SpacesAvailable returns the number of free bytes.
func (sb *StreamBuffer) SpacesAvailable() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size - sb.used
}

// StaticBuffers returns the storage and control block of a static stream or
// message buffer.
func (sb *StreamBuffer) StaticBuffers() (storage, cb *heapcaps.Block, ok bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.deleted {
		return nil, nil, false
	}
	return sb.staticBuffers()
}

// Delete destroys the stream or message buffer.
func (sb *StreamBuffer) Delete() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.deleted {
		return
	}
	sb.deleted = true
	sb.release(sb.k.heap)
}

func (sb *StreamBuffer) write(p []byte) {
	buf := sb.data.Bytes()[:sb.size]
	tail := (sb.head + sb.used) % sb.size
	n := copy(buf[tail:], p)
	copy(buf, p[n:])
	sb.used += len(p)
}

func (sb *StreamBuffer) read(dst []byte) {
	buf := sb.data.Bytes()[:sb.size]
	n := copy(dst, buf[sb.head:])
	if n < len(dst) {
		copy(dst[n:], buf)
	}
	sb.head = (sb.head + len(dst)) % sb.size
	sb.used -= len(dst)
}

func (sb *StreamBuffer) nextMessageLen() int {
	var hdr [MessageLengthBytes]byte
	buf := sb.data.Bytes()[:sb.size]
	for i := range hdr {
		hdr[i] = buf[(sb.head+i)%sb.size]
	}
	return int(binary.LittleEndian.Uint32(hdr[:]))
}
