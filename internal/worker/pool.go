// Package worker provides a bounded function pool shared by the page
// pipeline and the screenshot workers.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively processing jobs.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining

	// poolPercentageMultiplier converts ratio to percentage.
	poolPercentageMultiplier = 100
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Job is one unit of pool work.
type Job func(ctx context.Context)

// Pool runs submitted jobs with bounded concurrency.
type Pool struct {
	name         string
	size         int
	drainTimeout time.Duration
	logger       logger.Logger
	state        atomic.Int32
	sem          chan struct{}
	wg           sync.WaitGroup
	stopCh       chan struct{}

	jobsProcessed atomic.Int64
}

// NewPool creates a pool of the given size. name appears in logs only.
func NewPool(name string, size int, drainTimeout time.Duration, log logger.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("pool size must be positive")
	}
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}

	p := &Pool{
		name:         name,
		size:         size,
		drainTimeout: drainTimeout,
		logger:       log,
		sem:          make(chan struct{}, size),
		stopCh:       make(chan struct{}),
	}
	p.state.Store(int32(PoolStateStopped))

	return p, nil
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	p.logger.Info("worker pool started",
		logger.String("pool", p.name),
		logger.Int("pool_size", p.size))

	return nil
}

// Stop drains the pool: no new jobs are accepted and running jobs get until
// the drain timeout (or ctx) to finish.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("worker pool draining", logger.String("pool", p.name))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully", logger.String("pool", p.name))
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out", logger.String("pool", p.name))
	case <-time.After(p.drainTimeout):
		p.logger.Warn("worker pool drain timeout exceeded", logger.String("pool", p.name))
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Submit runs job on a pool slot, blocking until one frees up.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if p.State() != PoolStateRunning {
		return errors.New("pool is not running")
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return errors.New("pool is stopping")
	}

	p.run(ctx, job)
	return nil
}

// TrySubmit runs job if a slot is free, without blocking. Returns false
// when the pool is saturated.
func (p *Pool) TrySubmit(ctx context.Context, job Job) (bool, error) {
	if p.State() != PoolStateRunning {
		return false, errors.New("pool is not running")
	}

	select {
	case p.sem <- struct{}{}:
	default:
		return false, nil
	}

	p.run(ctx, job)
	return true, nil
}

func (p *Pool) run(ctx context.Context, job Job) {
	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("pool job panicked",
					logger.String("pool", p.name),
					logger.Any("panic", r))
			}
		}()

		job(ctx)
		p.jobsProcessed.Add(1)
	}()
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// IsRunning returns true if the pool is running.
func (p *Pool) IsRunning() bool {
	return p.State() == PoolStateRunning
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.size
}

// BusyCount returns the number of occupied slots.
func (p *Pool) BusyCount() int {
	return len(p.sem)
}

// Stats returns a point-in-time snapshot of the pool.
func (p *Pool) Stats() PoolStats {
	busy := p.BusyCount()
	return PoolStats{
		State:         p.State(),
		PoolSize:      p.size,
		BusyWorkers:   busy,
		IdleWorkers:   p.size - busy,
		JobsProcessed: p.jobsProcessed.Load(),
	}
}

// PoolStats holds statistics for the pool.
type PoolStats struct {
	State         PoolState
	PoolSize      int
	BusyWorkers   int
	IdleWorkers   int
	JobsProcessed int64
}

// Utilization returns the pool utilization as a percentage.
func (s PoolStats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.PoolSize) * poolPercentageMultiplier
}
