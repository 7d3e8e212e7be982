package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job abstracts what workers read off the queue.
type Job = model.Job

// Store is the part of the job repository workers write to.
type Store interface {
	Update(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker takes jobs from a Queue and runs them through a Generator.
type InMemoryWorker struct {
	queue      Queue
	generator  tryon.Generator
	store      Store
	name       string
	jobTimeout time.Duration
	now        func() time.Time
	busy       *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, generator tryon.Generator, store Store, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		generator: generator,
		store:     store,
		name:      "worker",
		now:       time.Now,
		busy:      new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := w.queue.Dequeue(runCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("job_id", job.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob runs one job. A generator error fails the job; only store
// errors are returned.
func (w *InMemoryWorker) processJob(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	metrics.UpdateWorkerActiveCount(int(w.busy.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.busy.Add(-1))) }()

	running, err := w.store.Update(ctx, job.ID, func(j *model.Job) {
		j.Status = model.JobRunning
		j.UpdatedAt = w.now()
	})
	if err != nil {
		metrics.RecordErrorByComponent("worker", "store_error")
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}

	genCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	res, genErr := w.generator.Generate(genCtx, running.Payload)

	_, err = w.store.Update(ctx, job.ID, func(j *model.Job) {
		if genErr != nil {
			j.Fail(genErr, w.now())
			return
		}
		j.Succeed(res, w.now())
	})
	if err != nil {
		metrics.RecordErrorByComponent("worker", "store_error")
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}

	if genErr != nil {
		metrics.RecordJobFinished(string(model.JobFailed))
		metrics.RecordErrorByComponent("worker", "generation_error")
		w.logger.Warn(ctx, "try-on job failed", logger.String("job_id", job.ID), logger.Error(genErr))
		return nil
	}
	metrics.RecordJobFinished(string(model.JobSucceeded))
	w.logger.Debug(ctx, "try-on job succeeded", logger.String("job_id", job.ID), logger.String("request_id", res.RequestID))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdownOnce sync.Once
	wg           sync.WaitGroup

	logger logger.Logger
}

// NewPool creates workerCount workers sharing one queue, generator and store.
// workerCount < 1 means one worker per CPU.
func NewPool(workerCount int, queue Queue, generator tryon.Generator, store Store, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	busy := new(atomic.Int64)
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, generator, store, workerOpts...)
		w.busy = busy
		pool.workers[i] = w
	}

	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Shutdown closes the queue, then waits for the workers to finish the
// jobs they hold.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.signal()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	p.wg.Wait()
	return nil
}

func (p *Pool) signal() {
	p.shutdownOnce.Do(func() {
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	})
}
