package withcaps

import (
	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

func streamKind(isMessage bool) string {
	if isMessage {
		return kindMessageBuffer
	}
	return kindStreamBuffer
}

// CreateStreamBufferGeneric creates a stream buffer, or a message buffer when
// isMessage is set, with control block and storage from memory providing
// caps. trigger is ignored for message buffers.
func (l *Layer) CreateStreamBufferGeneric(size, trigger int, isMessage bool, caps heapcaps.Caps) (*kernel.StreamBuffer, error) {
	kind := streamKind(isMessage)
	if size <= 0 || trigger < 0 {
		return nil, l.invalidShape(kind, "size and trigger level")
	}

	r := l.reserve()
	defer r.release()
	cb := r.alloc(kernel.SizeofStaticStreamBuffer, caps)
	storage := r.alloc(size, caps)
	if !r.ok() {
		return nil, l.outOfMemory(kind, caps)
	}

	var (
		sb  *kernel.StreamBuffer
		err error
	)
	if isMessage {
		sb, err = l.k.CreateMessageBufferStatic(size, storage, cb)
	} else {
		sb, err = l.k.CreateStreamBufferStatic(size, trigger, storage, cb)
	}
	if err != nil {
		return nil, l.constructorFailed(kind, caps, err)
	}
	r.commit()
	l.created(kind, caps)
	return sb, nil
}

// CreateStreamBuffer creates a stream buffer.
func (l *Layer) CreateStreamBuffer(size, trigger int, caps heapcaps.Caps) (*kernel.StreamBuffer, error) {
	return l.CreateStreamBufferGeneric(size, trigger, false, caps)
}

// CreateMessageBuffer creates a message buffer.
func (l *Layer) CreateMessageBuffer(size int, caps heapcaps.Caps) (*kernel.StreamBuffer, error) {
	return l.CreateStreamBufferGeneric(size, 0, true, caps)
}

// DeleteStreamBufferGeneric deletes a stream or message buffer made by this
// layer. isMessage must match how it was created.
func (l *Layer) DeleteStreamBufferGeneric(sb *kernel.StreamBuffer, isMessage bool) {
	kind := streamKind(isMessage)
	if sb.IsMessageBuffer() != isMessage {
		l.fatal(nil, "stream buffer kind mismatch",
			zap.String("kind", kind),
			zap.Bool("is_message", sb.IsMessageBuffer()))
		return
	}
	storage, cb, ok := sb.StaticBuffers()
	if !ok {
		l.fatal(nil, "stream buffer has no capability buffers", zap.String("kind", kind))
		return
	}
	sb.Delete()
	l.heap.Free(cb)
	l.heap.Free(storage)
	l.deleted(kind)
}

// DeleteStreamBuffer deletes a stream buffer.
func (l *Layer) DeleteStreamBuffer(sb *kernel.StreamBuffer) {
	l.DeleteStreamBufferGeneric(sb, false)
}

// DeleteMessageBuffer deletes a message buffer.
func (l *Layer) DeleteMessageBuffer(sb *kernel.StreamBuffer) {
	l.DeleteStreamBufferGeneric(sb, true)
}
