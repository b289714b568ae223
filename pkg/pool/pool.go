// Package pool provides an ants-backed worker pool for concurrent
// per-template triage runs.
package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// 池相关错误定义
var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("pool is closed")
	// ErrPoolOverload 池已满
	ErrPoolOverload = errors.New("pool is overloaded")
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）。
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间。
	ExpiryDuration time.Duration
	// Nonblocking 提交任务是否非阻塞（若池满则返回错误）。
	Nonblocking bool
}

// DefaultConfig 返回默认池配置。
func DefaultConfig() *Config {
	return &Config{
		Capacity:       64,
		ExpiryDuration: 30 * time.Second,
		Nonblocking:    false,
	}
}

// Pool represents a worker pool.
type Pool struct {
	name   string
	pool   *ants.Pool
	closed atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Capacity       int   `json:"capacity"`
	Running        int   `json:"running"`
	SubmittedTasks int64 `json:"submitted_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	PanicRecovered int64 `json:"panic_recovered"`
}

// New creates a new worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pool{name: name}

	opts := []ants.Option{
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(v interface{}) {
			p.panics.Add(1)
			logger.Errorw("worker panic recovered", "pool", name, "panic", v)
		}),
	}

	inner, err := ants.NewPool(config.Capacity, opts...)
	if err != nil {
		return nil, err
	}
	p.pool = inner
	return p, nil
}

// Submit submits a task to the pool.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrPoolOverload
		}
		return err
	}

	p.submitted.Add(1)
	return nil
}

// SubmitWithContext submits a task unless the context is already done.
func (p *Pool) SubmitWithContext(ctx context.Context, task func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Submit(task)
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:       p.pool.Cap(),
		Running:        p.pool.Running(),
		SubmittedTasks: p.submitted.Load(),
		CompletedTasks: p.completed.Load(),
		PanicRecovered: p.panics.Load(),
	}
}

// Release closes the pool, waiting up to timeout for in-flight tasks.
func (p *Pool) Release(timeout time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if timeout > 0 {
		return p.pool.ReleaseTimeout(timeout)
	}
	p.pool.Release()
	return nil
}
