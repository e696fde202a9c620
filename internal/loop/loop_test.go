package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPost_DrainRunsInOrder(t *testing.T) {
	l := New(60, nil)
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(nil)
	if n := l.Drain(); n != 5 {
		t.Fatalf("drained %d turns, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order=%v", got)
		}
	}
	if n := l.Drain(); n != 0 {
		t.Fatalf("second drain ran %d turns", n)
	}
}

func TestPost_FromInsideTurnRunsNextDrain(t *testing.T) {
	l := New(60, nil)
	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})
	l.Drain()
	if len(got) != 1 {
		t.Fatalf("inner turn ran in the same drain: %v", got)
	}
	l.Drain()
	if len(got) != 2 || got[1] != "inner" {
		t.Fatalf("got=%v", got)
	}
}

func TestStep_CountsSkippedTicks(t *testing.T) {
	var ticks int
	l := New(100, func(time.Time) { ticks++ })
	base := time.Unix(0, 0)
	l.Step(base)
	l.Step(base.Add(10 * time.Millisecond))
	l.Step(base.Add(50 * time.Millisecond)) // 40ms gap: 3 ticks missed
	st := l.Stats()
	if ticks != 3 || st.Ticks != 3 {
		t.Fatalf("ticks=%d stats=%+v", ticks, st)
	}
	if st.Skipped != 3 {
		t.Fatalf("skipped=%d want 3", st.Skipped)
	}
}

func TestNew_DefaultRate(t *testing.T) {
	if got := New(0, nil).Interval(); got != time.Second/DefaultTickRateHz {
		t.Fatalf("interval=%v", got)
	}
}

func TestRun_TicksAndTurnsNeverOverlap(t *testing.T) {
	var mu sync.Mutex
	inside := false
	overlap := false
	enter := func() {
		mu.Lock()
		if inside {
			overlap = true
		}
		inside = true
		mu.Unlock()
	}
	leave := func() {
		mu.Lock()
		inside = false
		mu.Unlock()
	}

	ticked := make(chan struct{}, 1)
	l := New(200, func(time.Time) {
		enter()
		time.Sleep(time.Millisecond)
		leave()
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() { enter(); leave() })
			}
		}()
	}
	wg.Wait()

	select {
	case <-ticked:
	case <-ctx.Done():
		t.Fatalf("no tick before timeout")
	}
	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-ctx.Done():
		t.Fatalf("posted turn never ran")
	}

	l.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run after stop: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Fatalf("a turn overlapped a tick")
	}
	if st := l.Stats(); st.Ticks == 0 || st.Turns < 201 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	l := New(60, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
