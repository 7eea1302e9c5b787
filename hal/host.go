package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// HostConfig sizes the host machine.
type HostConfig struct {
	Width, Height int
	// Tick is the wall-clock duration of one kernel tick.
	Tick time.Duration
	// Out receives console lines. Nil means os.Stdout.
	Out io.Writer
}

// DefaultHostConfig returns a 320x240 screen with a 10ms tick.
func DefaultHostConfig() HostConfig {
	return HostConfig{Width: 320, Height: 240, Tick: 10 * time.Millisecond}
}

// Host is the HAL used when running on a desktop machine.
type Host struct {
	logger *hostLogger
	fb     *hostFramebuffer
	t      *hostTime
}

// NewHost returns a host HAL.
func NewHost(cfg HostConfig) *Host {
	def := DefaultHostConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Host{
		logger: &hostLogger{w: cfg.Out},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		t:      newHostTime(cfg.Tick),
	}
}

func (h *Host) Logger() Logger   { return h.logger }
func (h *Host) Display() Display { return hostDisplay{fb: h.fb} }
func (h *Host) Time() Time       { return h.t }

// Advance emits the ticks that elapsed up to now.
func (h *Host) Advance(now time.Time) { h.t.advance(now) }

// Snapshot copies the framebuffer contents into dst.
func (h *Host) Snapshot(dst []byte) int { return h.fb.snapshot(dst) }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
