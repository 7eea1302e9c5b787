package hal

import "time"

// hostTime turns wall-clock progress into tick sequence numbers.
type hostTime struct {
	ch   chan uint64
	seq  uint64
	tick time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime(tick time.Duration) *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), tick: tick}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance emits one tick on the first call, then one per elapsed tick
// duration. The remainder carries over.
func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}
	if now.Before(t.last) {
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now

	n := uint64(t.acc / t.tick)
	if n == 0 {
		return
	}
	t.acc %= t.tick
	t.emit(n)
}

func (t *hostTime) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
