package withcaps

import (
	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

// CreateEventGroup creates an event group on a control block from memory
// providing caps.
func (l *Layer) CreateEventGroup(caps heapcaps.Caps) (*kernel.EventGroup, error) {
	r := l.reserve()
	defer r.release()
	cb := r.alloc(kernel.SizeofStaticEventGroup, caps)
	if !r.ok() {
		return nil, l.outOfMemory(kindEventGroup, caps)
	}

	eg, err := l.k.CreateEventGroupStatic(cb)
	if err != nil {
		return nil, l.constructorFailed(kindEventGroup, caps, err)
	}
	r.commit()
	l.created(kindEventGroup, caps)
	return eg, nil
}

// DeleteEventGroup deletes an event group made by this layer.
func (l *Layer) DeleteEventGroup(eg *kernel.EventGroup) {
	cb, ok := eg.StaticBuffers()
	if !ok {
		l.fatal(nil, "event group has no capability buffer", zap.String("kind", kindEventGroup))
		return
	}
	eg.Delete()
	l.heap.Free(cb)
	l.deleted(kindEventGroup)
}
