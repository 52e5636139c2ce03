package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPoolSize   = 2
	DefaultJobTimeout = 30 * time.Second
)

// ErrPoolClosed returned by Do after Close
var ErrPoolClosed = errors.New("worker pool closed")

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// WorkerPool runs blocking STT/TTS calls on a fixed set of goroutines so a
// slow engine cannot starve the session read loops.
type WorkerPool struct {
	jobs    chan job
	quit    chan struct{}
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

func NewWorkerPool(size int, timeout time.Duration, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = DefaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.L()
	}
	p := &WorkerPool{
		jobs:    make(chan job),
		quit:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			j.done <- p.execute(id, j)
		}
	}
}

func (p *WorkerPool) execute(id int, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("[Pool] --- job panicked", zap.Int("worker", id), zap.Any("panic", r))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// Do runs fn on a worker and waits for it. The job context carries the
// pool timeout, on expiry Do returns context.DeadlineExceeded and the
// worker slot frees up once fn returns.
func (p *WorkerPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	jctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	j := job{ctx: jctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
	case <-jctx.Done():
		return jctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-jctx.Done():
		return jctx.Err()
	}
}

// Close stops the workers after their current job.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
