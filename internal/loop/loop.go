// Package loop runs the client's single logical thread: fixed-rate ticks
// interleaved with turns posted by transport and I/O goroutines.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultTickRateHz = 60

// TickFunc is one simulation step. now is the ticker time for the tick.
type TickFunc func(now time.Time)

type Stats struct {
	Ticks   uint64
	Skipped uint64
	Turns   uint64
}

// Loop never runs a tick and a turn at the same time. When a tick (or a
// burst of turns) overruns the interval, missed ticks are dropped rather
// than replayed; they are counted in Stats.Skipped.
type Loop struct {
	interval time.Duration
	tick     TickFunc

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once

	last time.Time

	ticks   atomic.Uint64
	skipped atomic.Uint64
	turns   atomic.Uint64
}

func New(tickRateHz int, tick TickFunc) *Loop {
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	return &Loop{
		interval: time.Second / time.Duration(tickRateHz),
		tick:     tick,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (l *Loop) Interval() time.Duration { return l.interval }

// Post enqueues fn as a turn. It never blocks and is safe from any
// goroutine, including from inside a turn or a tick.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs every turn posted so far on the caller's goroutine and reports
// how many ran. Run calls it; headless drivers and tests may call it
// directly when they own the loop goroutine.
func (l *Loop) Drain() int {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
	l.turns.Add(uint64(len(batch)))
	return len(batch)
}

// Step runs one tick at now, counting ticks missed since the previous one.
func (l *Loop) Step(now time.Time) {
	if !l.last.IsZero() {
		if gap := now.Sub(l.last); gap >= 2*l.interval {
			l.skipped.Add(uint64(gap/l.interval) - 1)
		}
	}
	l.last = now
	l.ticks.Add(1)
	if l.tick != nil {
		l.tick(now)
	}
}

// Run blocks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case <-l.wake:
			l.Drain()
		case now := <-ticker.C:
			// Turns posted before the tick fired are applied first.
			l.Drain()
			l.Step(now)
		}
	}
}

func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:   l.ticks.Load(),
		Skipped: l.skipped.Load(),
		Turns:   l.turns.Load(),
	}
}
