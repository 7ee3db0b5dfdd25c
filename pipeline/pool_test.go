package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool("test", 3)
	defer p.Close()

	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func() {
			defer wg.Done()
			n := active.Add(1)
			for {
				seen := maxSeen.Load()
				if n <= seen || maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()

	if got := maxSeen.Load(); got > 3 {
		t.Fatalf("max concurrent tasks = %d, want <= 3", got)
	}
	if stats := p.Stats(); stats.Submitted != 20 {
		t.Fatalf("submitted = %d, want 20", stats.Submitted)
	}
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := NewPool("test", 1)
	p.Close()

	if err := p.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	p := NewPool("test", 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() { t.Error("task should not run") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestPoolCloseWaitsForRunningTasks(t *testing.T) {
	p := NewPool("test", 2)

	var done atomic.Int32
	for i := 0; i < 2; i++ {
		if err := p.Submit(context.Background(), func() {
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	p.Close()

	if got := done.Load(); got != 2 {
		t.Fatalf("completed = %d, want 2", got)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool("test", 1)

	if err := p.Submit(context.Background(), func() { panic("boom") }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ran := make(chan struct{})
	if err := p.Submit(context.Background(), func() { close(ran) }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	<-ran
	p.Close()

	stats := p.Stats()
	if stats.Panicked != 1 || stats.Completed != 1 {
		t.Fatalf("stats = %+v, want 1 panicked and 1 completed", stats)
	}
}

func TestRetryBackoff(t *testing.T) {
	rp := retryPolicy{base: 100 * time.Millisecond, max: 350 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond},
		{10, 350 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := rp.backoff(tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryBackoffUncappedNeverWraps(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "large attempt", base: 100 * time.Millisecond, attempt: 200, want: 100 * time.Millisecond << 30},
		{name: "overflowing base", base: time.Hour, attempt: 40, want: time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := retryPolicy{base: tt.base}
			got := rp.backoff(tt.attempt)
			if got <= 0 || got != tt.want {
				t.Fatalf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
			}
		})
	}
}
