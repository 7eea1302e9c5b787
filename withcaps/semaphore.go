package withcaps

import (
	"go.uber.org/zap"

	"rtcaps/heapcaps"
	"rtcaps/kernel"
)

// CreateSemaphoreGeneric creates a semaphore of the given kind on a control
// block from memory providing caps. maxCount and initial apply to counting
// semaphores only.
func (l *Layer) CreateSemaphoreGeneric(maxCount, initial int, kind kernel.SemaphoreKind, caps heapcaps.Caps) (*kernel.Semaphore, error) {
	if maxCount < 0 || initial < 0 {
		return nil, l.invalidShape(kindSemaphore, "negative count")
	}

	r := l.reserve()
	defer r.release()
	cb := r.alloc(kernel.SizeofStaticSemaphore, caps)
	if !r.ok() {
		return nil, l.outOfMemory(kindSemaphore, caps)
	}

	s, err := l.k.CreateSemaphoreStatic(kind, maxCount, initial, cb)
	if err != nil {
		return nil, l.constructorFailed(kindSemaphore, caps, err)
	}
	r.commit()
	l.created(kindSemaphore, caps)
	return s, nil
}

// CreateBinarySemaphore creates an empty binary semaphore.
func (l *Layer) CreateBinarySemaphore(caps heapcaps.Caps) (*kernel.Semaphore, error) {
	return l.CreateSemaphoreGeneric(1, 0, kernel.SemaphoreBinary, caps)
}

// CreateCountingSemaphore creates a counting semaphore.
func (l *Layer) CreateCountingSemaphore(maxCount, initial int, caps heapcaps.Caps) (*kernel.Semaphore, error) {
	return l.CreateSemaphoreGeneric(maxCount, initial, kernel.SemaphoreCounting, caps)
}

// CreateMutex creates an available mutex.
func (l *Layer) CreateMutex(caps heapcaps.Caps) (*kernel.Semaphore, error) {
	return l.CreateSemaphoreGeneric(1, 1, kernel.SemaphoreMutex, caps)
}

// CreateRecursiveMutex creates an available recursive mutex.
func (l *Layer) CreateRecursiveMutex(caps heapcaps.Caps) (*kernel.Semaphore, error) {
	return l.CreateSemaphoreGeneric(1, 1, kernel.SemaphoreRecursiveMutex, caps)
}

// DeleteSemaphore deletes a semaphore of any kind made by this layer.
func (l *Layer) DeleteSemaphore(s *kernel.Semaphore) {
	cb, ok := s.StaticBuffers()
	if !ok {
		l.fatal(nil, "semaphore has no capability buffer", zap.String("kind", kindSemaphore))
		return
	}
	s.Delete()
	l.heap.Free(cb)
	l.deleted(kindSemaphore)
}
