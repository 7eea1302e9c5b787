// Package app wires the capability heap, the kernel and the withcaps layer
// into a running demo: a supervisor task that keeps creating and deleting
// capability-backed objects while the screen shows per-region heap usage.
package app

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rtcaps/hal"
	"rtcaps/heapcaps"
	"rtcaps/internal/buildinfo"
	"rtcaps/kernel"
	"rtcaps/withcaps"
)

// Config configures the demo system.
type Config struct {
	Cores      int
	Layout     []heapcaps.RegionSpec
	StackCaps  heapcaps.Caps
	ObjectCaps heapcaps.Caps
	Logger     *zap.Logger
	// Registry receives heap and layer metrics. Nil disables metrics.
	Registry prometheus.Registerer
	// ReportEvery writes a heap report to the console every N steps; 0
	// disables reports.
	ReportEvery uint64
	// CycleDelay is the pause between supervisor cycles, in ticks.
	CycleDelay kernel.Ticks
	// ExitOnAbort exits the process after painting the abort screen.
	ExitOnAbort bool
}

// DefaultConfig returns a two-core system on heapcaps.DefaultLayout.
func DefaultConfig() Config {
	return Config{
		Cores:       2,
		Layout:      heapcaps.DefaultLayout(),
		StackCaps:   heapcaps.CapSPIRAM,
		ObjectCaps:  heapcaps.CapInternal | heapcaps.Cap8Bit,
		ReportEvery: 600,
		CycleDelay:  10,
		ExitOnAbort: true,
	}
}

// Stats counts supervisor progress.
type Stats struct {
	Cycles   uint64
	Failures uint64
}

// System is a running demo.
type System struct {
	h     hal.HAL
	cfg   Config
	log   *zap.Logger
	heap  *heapcaps.Heap
	k     *kernel.Kernel
	layer *withcaps.Layer

	steps    uint64
	cycles   atomic.Uint64
	failures atomic.Uint64

	stop      chan struct{}
	closeOnce sync.Once
}

// New starts the system and returns its step function. A setup error is
// returned by every call of the step function.
func New(h hal.HAL, cfg Config) func() error {
	s, err := NewSystem(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	return s.Step
}

// NewSystem builds the heap, kernel and layer, installs the abort screen and
// starts the supervisor task.
func NewSystem(h hal.HAL, cfg Config) (*System, error) {
	if h == nil {
		return nil, errors.New("app: nil HAL")
	}
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	if len(cfg.Layout) == 0 {
		cfg.Layout = heapcaps.DefaultLayout()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	heap, err := heapcaps.NewHeap(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("app: heap: %w", err)
	}
	k := kernel.New(kernel.Config{
		Cores:  cfg.Cores,
		Heap:   heap,
		Logger: cfg.Logger,
	})

	var metrics *withcaps.Metrics
	if cfg.Registry != nil {
		if err := cfg.Registry.Register(heapcaps.NewCollector(heap)); err != nil {
			return nil, fmt.Errorf("app: register heap collector: %w", err)
		}
		metrics = withcaps.NewMetrics(cfg.Registry)
	}

	s := &System{
		h:    h,
		cfg:  cfg,
		log:  cfg.Logger.Named("app"),
		heap: heap,
		k:    k,
		layer: withcaps.New(withcaps.Config{
			Kernel:  k,
			Heap:    heap,
			Logger:  cfg.Logger,
			Metrics: metrics,
		}),
		stop: make(chan struct{}),
	}
	installAbortScreen(h, k, s.log, cfg.ExitOnAbort)

	if _, err := s.layer.CreateTaskPinnedToCore(s.supervise, supervisorName,
		supervisorStack, workerPriority, 0, cfg.StackCaps); err != nil {
		return nil, fmt.Errorf("app: start supervisor: %w", err)
	}
	s.startTicks()

	s.log.Info("system started",
		zap.String("version", buildinfo.Short()),
		zap.Int("cores", cfg.Cores),
		zap.Int("regions", len(cfg.Layout)),
		zap.Stringer("stack_caps", cfg.StackCaps),
		zap.Stringer("object_caps", cfg.ObjectCaps))
	return s, nil
}

// startTicks forwards the HAL tick stream to the kernel.
func (s *System) startTicks() {
	t := s.h.Time()
	if t == nil {
		return
	}
	ch := t.Ticks()
	if ch == nil {
		return
	}
	go func() {
		for {
			select {
			case <-s.stop:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				s.k.Tick()
			}
		}
	}()
}

// Step repaints the heap monitor and writes the periodic heap report. After
// an abort it leaves the abort screen in place.
func (s *System) Step() error {
	if s.k.InPanicMode() {
		return nil
	}
	s.steps++
	if s.cfg.ReportEvery > 0 && s.steps%s.cfg.ReportEvery == 0 {
		s.report()
	}
	return s.paint()
}

// Stats returns supervisor progress.
func (s *System) Stats() Stats {
	return Stats{Cycles: s.cycles.Load(), Failures: s.failures.Load()}
}

// Heap returns the capability heap.
func (s *System) Heap() *heapcaps.Heap { return s.heap }

// Kernel returns the kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Close stops tick forwarding and shuts the kernel down.
func (s *System) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.k.Shutdown()
	})
}

func (s *System) report() {
	l := s.h.Logger()
	if l == nil {
		return
	}
	st := s.Stats()
	l.WriteLineString(fmt.Sprintf("heap report: tick=%d cycles=%d failures=%d",
		s.k.Ticks(), st.Cycles, st.Failures))
	for _, r := range s.heap.Regions() {
		l.WriteLineString(fmt.Sprintf("  %-6s %-40s free %7d/%-7d min %7d largest %7d blocks %d",
			r.Name, r.Caps, r.Free, r.Total, r.MinimumFree, r.LargestFreeBlock, r.Blocks))
	}
}
