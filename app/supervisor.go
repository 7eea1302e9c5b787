package app

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rtcaps/kernel"
)

const (
	supervisorName  = "supervisor"
	supervisorStack = 4096
	workerStack     = 2048
	// Every demo task shares one priority: Wait-based blocking yields, so
	// a higher-priority waiter would starve the tasks it waits for.
	workerPriority = 2

	queueLength  = 8
	itemCount    = 4
	streamSize   = 64
	exchangeWait = kernel.Ticks(200)

	bitProduced kernel.EventBits = 1 << 0
)

var (
	messagePayload = []byte("capability memory")
	streamPayload  = []byte("stream bytes")
)

// objects are the kernel objects of one supervisor cycle.
type objects struct {
	queue    *kernel.Queue
	binary   *kernel.Semaphore
	counting *kernel.Semaphore
	mutex    *kernel.Semaphore
	stream   *kernel.StreamBuffer
	message  *kernel.StreamBuffer
	events   *kernel.EventGroup
}

func (s *System) supervise(c *kernel.Context) {
	for {
		if err := s.cycle(c); err != nil {
			s.failures.Add(1)
			s.log.Warn("cycle failed", zap.Uint64("cycle", s.cycles.Load()), zap.Error(err))
		} else {
			s.cycles.Add(1)
		}
		c.Delay(s.cfg.CycleDelay)
	}
}

// cycle creates every object kind and three workers, exchanges data, then
// deletes all of it. Each worker leaves by a different deletion path.
func (s *System) cycle(c *kernel.Context) error {
	o, err := s.createObjects()
	if err != nil {
		return err
	}
	defer s.deleteObjects(o)

	producer, err := s.layer.CreateTask(func(c *kernel.Context) {
		s.produce(c, o)
	}, "producer", workerStack, workerPriority, s.cfg.StackCaps)
	if err != nil {
		return err
	}
	consumed := s.consume(c, o)
	// The producer deletes itself once it has published everything; the
	// objects must outlive it.
	c.Wait(func() bool { return !s.alive(producer) }, kernel.MaxDelay)
	if consumed != nil {
		return consumed
	}

	if err := s.deleteSpinner(c); err != nil {
		return err
	}
	return s.deleteSleeper(c)
}

func (s *System) createObjects() (*objects, error) {
	caps := s.cfg.ObjectCaps
	o := &objects{}
	steps := []func() error{
		func() (err error) {
			o.queue, err = s.layer.CreateQueue(queueLength, 4, caps)
			return err
		},
		func() (err error) {
			o.binary, err = s.layer.CreateBinarySemaphore(caps)
			return err
		},
		func() (err error) {
			o.counting, err = s.layer.CreateCountingSemaphore(itemCount, 0, caps)
			return err
		},
		func() (err error) {
			o.mutex, err = s.layer.CreateMutex(caps)
			return err
		},
		func() (err error) {
			o.stream, err = s.layer.CreateStreamBuffer(streamSize, 1, caps)
			return err
		},
		func() (err error) {
			o.message, err = s.layer.CreateMessageBuffer(streamSize, caps)
			return err
		},
		func() (err error) {
			o.events, err = s.layer.CreateEventGroup(caps)
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			s.deleteObjects(o)
			return nil, err
		}
	}
	return o, nil
}

func (s *System) deleteObjects(o *objects) {
	if o.queue != nil {
		s.layer.DeleteQueue(o.queue)
	}
	for _, sem := range []*kernel.Semaphore{o.binary, o.counting, o.mutex} {
		if sem != nil {
			s.layer.DeleteSemaphore(sem)
		}
	}
	if o.stream != nil {
		s.layer.DeleteStreamBuffer(o.stream)
	}
	if o.message != nil {
		s.layer.DeleteMessageBuffer(o.message)
	}
	if o.events != nil {
		s.layer.DeleteEventGroup(o.events)
	}
}

// produce publishes one batch on every object and deletes its own task.
func (s *System) produce(c *kernel.Context, o *objects) {
	var item [4]byte
	for i := uint32(0); i < itemCount; i++ {
		binary.LittleEndian.PutUint32(item[:], i)
		if o.queue.Send(c, item[:], exchangeWait) {
			o.counting.Give(c)
		}
	}
	o.message.Send(c, messagePayload, exchangeWait)
	o.stream.Send(c, streamPayload, exchangeWait)
	o.events.SetBits(bitProduced)

	s.layer.DeleteTask(c, nil)
}

func (s *System) consume(c *kernel.Context, o *objects) error {
	if got := o.events.WaitBits(c, bitProduced, true, true, exchangeWait); got&bitProduced == 0 {
		return fmt.Errorf("producer did not publish: bits %#x", got)
	}

	var item [4]byte
	for i := uint32(0); i < itemCount; i++ {
		if !o.counting.Take(c, 0) {
			return fmt.Errorf("counting semaphore short at item %d", i)
		}
		if !o.queue.Receive(c, item[:], 0) {
			return fmt.Errorf("queue empty at item %d", i)
		}
		if got := binary.LittleEndian.Uint32(item[:]); got != i {
			return fmt.Errorf("queue item %d out of order: got %d", i, got)
		}
	}

	buf := make([]byte, streamSize)
	n := o.message.Receive(c, buf, 0)
	if !bytes.Equal(buf[:n], messagePayload) {
		return fmt.Errorf("message buffer returned %q", buf[:n])
	}
	n = o.stream.Receive(c, buf, 0)
	if !bytes.Equal(buf[:n], streamPayload) {
		return fmt.Errorf("stream buffer returned %q", buf[:n])
	}

	if !o.mutex.Take(c, 0) {
		return errors.New("mutex busy")
	}
	o.mutex.Give(c)
	o.binary.Give(c)
	if !o.binary.Take(c, 0) {
		return errors.New("binary semaphore not given")
	}
	return nil
}

// deleteSpinner deletes a task that keeps running on the last core. With
// more than one core the deletion crosses cores.
func (s *System) deleteSpinner(c *kernel.Context) error {
	core := kernel.CoreID(s.k.NumCores() - 1)
	spinner, err := s.layer.CreateTaskPinnedToCore(func(c *kernel.Context) {
		for {
			c.Yield()
		}
	}, "spinner", workerStack, workerPriority, core, s.cfg.StackCaps)
	if err != nil {
		return err
	}
	if s.k.NumCores() > 1 {
		c.Wait(func() bool { return s.k.TaskState(spinner) == kernel.Running }, exchangeWait)
	}
	s.layer.DeleteTask(c, spinner)
	return nil
}

// deleteSleeper deletes a task blocked in an endless delay.
func (s *System) deleteSleeper(c *kernel.Context) error {
	sleeper, err := s.layer.CreateTask(func(c *kernel.Context) {
		c.Delay(kernel.MaxDelay)
	}, "sleeper", workerStack, workerPriority, s.cfg.StackCaps)
	if err != nil {
		return err
	}
	blocked := c.Wait(func() bool { return s.k.TaskState(sleeper) == kernel.Blocked }, exchangeWait)
	state := s.k.TaskState(sleeper)
	s.layer.DeleteTask(c, sleeper)
	if !blocked {
		return fmt.Errorf("sleeper never blocked: %s", state)
	}
	return nil
}

func (s *System) alive(t *kernel.Task) bool {
	switch s.k.TaskState(t) {
	case kernel.Deleted, kernel.Invalid:
		return false
	}
	return true
}

