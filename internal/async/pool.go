package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
)

var (
	// ErrQueueTimeout is returned when a job waited longer than the wait timeout for a worker.
	ErrQueueTimeout = common.ErrQueueTimeout
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("inference pool is shut down")
)

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	ctx      context.Context
	fn       func(ctx context.Context)
	state    atomic.Int32
	done     chan struct{}
	enqueued time.Time
}

// Pool runs heavy inference work on a fixed set of workers behind a bounded
// queue. Callers block until their job has run.
type Pool struct {
	logger      *slog.Logger
	workers     int
	waitTimeout time.Duration

	ch     chan *job
	wg     sync.WaitGroup
	once   sync.Once
	active atomic.Int32

	mu     sync.RWMutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan *job, n)
		}
	}
}

// WithWaitTimeout bounds how long a job may sit in the queue; zero waits indefinitely.
func WithWaitTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.waitTimeout = d
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 2,
		ch:      make(chan *job, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("pool.worker.started", "worker_id", workerID)

				for j := range p.ch {
					metrics.SetQueueDepth(len(p.ch))
					if !j.state.CompareAndSwap(jobQueued, jobRunning) {
						continue
					}
					if j.ctx.Err() != nil {
						close(j.done)
						continue
					}
					metrics.RecordQueueWait(time.Since(j.enqueued).Seconds())
					metrics.SetQueueActive(int(p.active.Add(1)))
					j.fn(j.ctx)
					metrics.SetQueueActive(int(p.active.Add(-1)))
					close(j.done)
				}

				p.logger.Debug("pool.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Do runs fn on a worker and waits for it. A full queue fails fast with
// common.ErrQueueFull; fn is not run when ctx ends or the wait timeout
// elapses before a worker picks it up.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context)) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{}), enqueued: time.Now()}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	select {
	case p.ch <- j:
		metrics.SetQueueDepth(len(p.ch))
	default:
		p.mu.RUnlock()
		metrics.RecordQueueRejection()
		common.LoggerFromContext(ctx, p.logger).Warn("pool.queue_full", "capacity", cap(p.ch))
		return common.ErrQueueFull
	}
	p.mu.RUnlock()

	var timeout <-chan time.Time
	if p.waitTimeout > 0 {
		t := time.NewTimer(p.waitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-j.done:
		return ctx.Err()
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
			return ctx.Err()
		}
		<-j.done
		return ctx.Err()
	case <-timeout:
		if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
			return ErrQueueTimeout
		}
		<-j.done
		return nil
	}
}

// Submit runs fn on the pool and returns its result.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if perr := p.Do(ctx, func(ctx context.Context) { out, err = fn(ctx) }); perr != nil {
		var zero T
		if err != nil {
			return zero, err
		}
		return zero, perr
	}
	return out, err
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("pool.shutdown_interrupted")
	case <-done:
		p.logger.Info("pool.drained")
	}
}
