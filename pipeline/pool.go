// Package pipeline runs crawl runs: category enumeration, URL collection on a
// listing pool, item fetching on an item pool, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed is returned when Submit is called after Close.
	ErrPoolClosed = errors.New("pipeline: pool closed")
)

// Task is one unit of work executed by a pool worker.
type Task func()

// Pool is a fixed set of long-lived workers. Submit hands a task directly to
// an idle worker, so at most Size tasks run at once.
type Pool struct {
	name    string
	size    int
	tasks   chan Task
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics poolMetrics

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPool starts workers goroutines. A non-positive count starts one.
func NewPool(name string, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	p := &Pool{
		name:     name,
		size:     workers,
		tasks:    make(chan Task),
		logger:   slog.Default().With(slog.String("component", "pool"), slog.String("pool", name)),
		shutdown: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit blocks until a worker accepts task, ctx ends, or the pool closes.
// An accepted task always runs to completion.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return nil
	}

	select {
	case <-p.shutdown:
		return ErrPoolClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrPoolClosed
	case p.tasks <- task:
		p.metrics.submitted.Add(1)
		return nil
	}
}

// Close stops accepting tasks and waits for running ones to finish.
func (p *Pool) Close() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:      p.name,
		Workers:   p.size,
		Submitted: p.metrics.submitted.Load(),
		Completed: p.metrics.completed.Load(),
		Panicked:  p.metrics.panicked.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdown:
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.panicked.Add(1)
			p.logger.Error("task panicked", slog.Any("panic", fmt.Sprint(r)))
			return
		}
		p.metrics.completed.Add(1)
	}()
	task()
}

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Submitted int64  `json:"submitted"`
	Completed int64  `json:"completed"`
	Panicked  int64  `json:"panicked"`
}

type poolMetrics struct {
	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}
