package engine

import (
	"sync"
	"time"
)

// DefaultFrameInterval paces repaints at roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler runs fn at the next frame boundary, never on the calling
// goroutine before Request returns. The returned function cancels the
// request if it has not run yet.
type Scheduler interface {
	Request(fn func()) (cancel func())
}

// TimerScheduler schedules frames on a timer.
type TimerScheduler struct {
	Interval time.Duration
}

func (s TimerScheduler) Request(fn func()) func() {
	d := s.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// frameGate keeps at most one frame pending. Requests made while a frame is
// pending are absorbed by it.
type frameGate struct {
	mu      sync.Mutex
	sched   Scheduler
	pending bool
	cancel  func()
	closed  bool
}

// request schedules paint unless a frame is already pending. It reports
// whether a new frame was scheduled.
func (g *frameGate) request(paint func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending || g.closed {
		return false
	}
	g.pending = true
	g.cancel = g.sched.Request(func() {
		g.mu.Lock()
		if !g.pending || g.closed {
			g.mu.Unlock()
			return
		}
		g.pending = false
		g.cancel = nil
		g.mu.Unlock()
		paint()
	})
	return true
}

func (g *frameGate) isPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// close cancels the pending frame and refuses further requests.
func (g *frameGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.pending = false
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
