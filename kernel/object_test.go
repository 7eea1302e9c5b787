package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcaps/heapcaps"
)

func TestQueueFIFO(t *testing.T) {
	k, h := newTestKernel(t, 1)
	storage := h.Malloc(3*4, heapcaps.Cap8Bit)
	cb := h.Malloc(SizeofStaticQueue, heapcaps.Cap8Bit)

	q, err := k.CreateQueueStatic(3, 4, storage, cb)
	require.NoError(t, err)

	item := make([]byte, 4)
	for i := uint32(1); i <= 3; i++ {
		binary.LittleEndian.PutUint32(item, i)
		require.True(t, q.TrySend(item))
	}
	assert.False(t, q.TrySend(item))
	assert.Equal(t, 3, q.MessagesWaiting())
	assert.Equal(t, 0, q.SpacesAvailable())

	got := make([]byte, 4)
	for i := uint32(1); i <= 3; i++ {
		require.True(t, q.TryReceive(got))
		assert.Equal(t, i, binary.LittleEndian.Uint32(got))
		// Refill one slot each round so the ring wraps.
		if i == 1 {
			binary.LittleEndian.PutUint32(item, 4)
			require.True(t, q.TrySend(item))
		}
	}
	require.True(t, q.TryReceive(got))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(got))
	assert.False(t, q.TryReceive(got))

	gotStorage, gotCB, ok := q.StaticBuffers()
	require.True(t, ok)
	assert.Same(t, storage, gotStorage)
	assert.Same(t, cb, gotCB)

	q.Delete()
	_, _, ok = q.StaticBuffers()
	assert.False(t, ok)
	assert.False(t, q.TrySend(item))
}

func TestQueueZeroItemSize(t *testing.T) {
	k, h := newTestKernel(t, 1)
	cb := h.Malloc(SizeofStaticQueue, heapcaps.Cap8Bit)

	_, err := k.CreateQueueStatic(2, 0, h.Malloc(8, heapcaps.Cap8Bit), cb)
	assert.ErrorIs(t, err, ErrInvalidParams)

	q, err := k.CreateQueueStatic(2, 0, nil, cb)
	require.NoError(t, err)
	assert.True(t, q.TrySend(nil))
	assert.True(t, q.TrySend(nil))
	assert.False(t, q.TrySend(nil))
	assert.True(t, q.TryReceive(nil))

	storage, gotCB, ok := q.StaticBuffers()
	require.True(t, ok)
	assert.Nil(t, storage)
	assert.Same(t, cb, gotCB)
}

func TestQueueValidation(t *testing.T) {
	k, h := newTestKernel(t, 1)
	cb := h.Malloc(SizeofStaticQueue, heapcaps.Cap8Bit)

	_, err := k.CreateQueueStatic(0, 4, h.Malloc(4, heapcaps.Cap8Bit), cb)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = k.CreateQueueStatic(4, 4, h.Malloc(8, heapcaps.Cap8Bit), cb)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = k.CreateQueueStatic(1, 4, h.Malloc(4, heapcaps.Cap8Bit), h.Malloc(8, heapcaps.Cap8Bit))
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestDynamicQueueFreesOnDelete(t *testing.T) {
	k, h := newTestKernel(t, 1)
	before := h.FreeSize(heapcaps.KernelCaps)

	q, err := k.CreateQueue(8, 16)
	require.NoError(t, err)
	assert.Less(t, h.FreeSize(heapcaps.KernelCaps), before)
	_, _, ok := q.StaticBuffers()
	assert.False(t, ok)

	q.Delete()
	q.Delete()
	assert.Equal(t, before, h.FreeSize(heapcaps.KernelCaps))
}

func TestQueueBlockingReceive(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	q, err := k.CreateQueue(1, 1)
	require.NoError(t, err)
	t.Cleanup(q.Delete)

	runInTask(t, k, 1, func(c *Context) {
		_, err := c.Kernel().CreateTask(func(*Context) {
			q.TrySend([]byte{42})
		}, "producer", 1024, 1, NoAffinity)
		assert.NoError(t, err)

		got := make([]byte, 1)
		assert.True(t, q.Receive(c, got, MaxDelay))
		assert.Equal(t, byte(42), got[0])
		assert.False(t, q.Receive(c, got, 0))
	})
}

func TestSemaphoreKinds(t *testing.T) {
	k, h := newTestKernel(t, 1)
	cb := func() *heapcaps.Block { return h.Malloc(SizeofStaticSemaphore, heapcaps.Cap8Bit) }

	t.Run("binary starts empty", func(t *testing.T) {
		s, err := k.CreateSemaphoreStatic(SemaphoreBinary, 0, 0, cb())
		require.NoError(t, err)
		assert.False(t, s.TryTake(nil))
		assert.True(t, s.Give(nil))
		assert.False(t, s.Give(nil))
		assert.True(t, s.TryTake(nil))
	})

	t.Run("counting bounds", func(t *testing.T) {
		for _, bad := range [][2]int{{0, 0}, {3, -1}, {3, 4}} {
			_, err := k.CreateSemaphoreStatic(SemaphoreCounting, bad[0], bad[1], cb())
			assert.ErrorIs(t, err, ErrInvalidParams, "max %d initial %d", bad[0], bad[1])
		}
		s, err := k.CreateSemaphoreStatic(SemaphoreCounting, 3, 2, cb())
		require.NoError(t, err)
		assert.Equal(t, 2, s.Count())
		assert.True(t, s.Give(nil))
		assert.False(t, s.Give(nil))
		assert.Equal(t, 3, s.Count())
	})

	t.Run("static buffers", func(t *testing.T) {
		block := cb()
		s, err := k.CreateSemaphoreStatic(SemaphoreMutex, 0, 0, block)
		require.NoError(t, err)
		got, ok := s.StaticBuffers()
		require.True(t, ok)
		assert.Same(t, block, got)
		s.Delete()
		_, ok = s.StaticBuffers()
		assert.False(t, ok)
	})
}

func TestMutexHolder(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	m, err := k.CreateSemaphore(SemaphoreRecursiveMutex, 0, 0)
	require.NoError(t, err)
	t.Cleanup(m.Delete)

	runInTask(t, k, 1, func(c *Context) {
		assert.True(t, m.TryTake(c))
		assert.True(t, m.TryTake(c))
		assert.Same(t, c.Task(), m.Holder())
		assert.False(t, m.Give(nil))
		assert.True(t, m.Give(c))
		assert.Same(t, c.Task(), m.Holder())
		assert.True(t, m.Give(c))
		assert.Nil(t, m.Holder())
		assert.Equal(t, 1, m.Count())
	})
}

func TestStreamBufferWraps(t *testing.T) {
	k, h := newTestKernel(t, 1)
	storage := h.Malloc(8, heapcaps.Cap8Bit)
	cb := h.Malloc(SizeofStaticStreamBuffer, heapcaps.Cap8Bit)

	sb, err := k.CreateStreamBufferStatic(8, 0, storage, cb)
	require.NoError(t, err)
	assert.Equal(t, 1, sb.TriggerLevel())
	assert.False(t, sb.IsMessageBuffer())

	assert.Equal(t, 6, sb.TrySend([]byte("abcdef")))
	got := make([]byte, 4)
	assert.Equal(t, 4, sb.TryReceive(got))
	assert.Equal(t, "abcd", string(got))

	assert.Equal(t, 6, sb.TrySend([]byte("ghijklmn")))
	assert.Equal(t, 0, sb.SpacesAvailable())

	all := make([]byte, 16)
	n := sb.TryReceive(all)
	assert.Equal(t, "efghijkl", string(all[:n]))
}

func TestStreamBufferValidation(t *testing.T) {
	k, h := newTestKernel(t, 1)
	storage := h.Malloc(8, heapcaps.Cap8Bit)
	cb := h.Malloc(SizeofStaticStreamBuffer, heapcaps.Cap8Bit)

	_, err := k.CreateStreamBufferStatic(8, 9, storage, cb)
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = k.CreateStreamBufferStatic(16, 1, storage, cb)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	_, err = k.CreateMessageBufferStatic(MessageLengthBytes, storage, cb)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestMessageBufferKeepsBoundaries(t *testing.T) {
	k, _ := newTestKernel(t, 1)
	mb, err := k.CreateMessageBuffer(20)
	require.NoError(t, err)
	t.Cleanup(mb.Delete)
	assert.True(t, mb.IsMessageBuffer())

	assert.Equal(t, 3, mb.TrySend([]byte("one")))
	assert.Equal(t, 5, mb.TrySend([]byte("three")))
	assert.Equal(t, 0, mb.TrySend([]byte("toolong")))
	assert.Equal(t, 2*MessageLengthBytes+8, mb.BytesAvailable())

	small := make([]byte, 2)
	assert.Equal(t, 0, mb.TryReceive(small))

	buf := make([]byte, 16)
	n := mb.TryReceive(buf)
	assert.Equal(t, "one", string(buf[:n]))
	n = mb.TryReceive(buf)
	assert.Equal(t, "three", string(buf[:n]))
	assert.Equal(t, 0, mb.BytesAvailable())
}

func TestEventGroupWait(t *testing.T) {
	k, h := newTestKernel(t, 1)
	cb := h.Malloc(SizeofStaticEventGroup, heapcaps.Cap8Bit)
	eg, err := k.CreateEventGroupStatic(cb)
	require.NoError(t, err)

	assert.Equal(t, EventBits(0x5), eg.SetBits(0x5))
	assert.Equal(t, EventBits(0x5), eg.SetBits(0xff000000))
	assert.Equal(t, EventBits(0x5), eg.ClearBits(0x1))
	assert.Equal(t, EventBits(0x4), eg.GetBits())

	runInTask(t, k, 1, func(c *Context) {
		got := eg.WaitBits(c, 0x6, false, true, 0)
		assert.Equal(t, EventBits(0x4), got)

		_, err := c.Kernel().CreateTask(func(*Context) { eg.SetBits(0x2) }, "setter", 1024, 1, NoAffinity)
		assert.NoError(t, err)
		got = eg.WaitBits(c, 0x6, true, true, MaxDelay)
		assert.Equal(t, EventBits(0x6), got)
		assert.Equal(t, EventBits(0), eg.GetBits())
	})

	got, ok := eg.StaticBuffers()
	require.True(t, ok)
	assert.Same(t, cb, got)
	eg.Delete()
	_, ok = eg.StaticBuffers()
	assert.False(t, ok)
}
