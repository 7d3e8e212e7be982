// Package service wires the try-on pipeline, the catalog tables, label
// files and visitor uploads into the dependencies required by the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/unitry/internal/adapters/labels"
	jobqueue "github.com/okian/unitry/internal/adapters/mq/queue"
	workerpool "github.com/okian/unitry/internal/adapters/mq/worker"
	"github.com/okian/unitry/internal/adapters/repository"
	"github.com/okian/unitry/internal/adapters/uploads"
	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/okian/unitry/internal/domain/dedupe"
	"github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const uploadSweepInterval = time.Minute

// instrumentedGenerator records latency and outcome of every generation.
type instrumentedGenerator struct {
	backend string
	next    tryon.Generator
}

func (g *instrumentedGenerator) Generate(ctx context.Context, p tryon.Payload) (tryon.Result, error) {
	start := time.Now()
	res, err := g.next.Generate(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordTryOn(g.backend, outcome, time.Since(start))
	return res, err
}

// Service implements the API and page dependencies of the demo.
type Service struct {
	mu sync.RWMutex

	// Core components
	jobs       *repository.MemoryStore
	deduper    dedupe.Deduper
	queue      jobqueue.Queue
	workerPool *workerpool.Pool
	submitting singleflight.Group
	generator  tryon.Generator
	labels     *labels.Loader
	uploads    *uploads.Store

	// Configuration
	backend         string
	workerCount     int
	queueSize       int
	idempotencySize int
	jobRetention    time.Duration
	jobTimeout      time.Duration
	assets          fs.FS
	labelTTL        time.Duration
	uploadMaxBytes  int64
	uploadTTL       time.Duration
	uploadThumbPx   int
	uploadMaxPixels int
	basePath        string
	apiPrefix       string
	prefix          basepath.Prefixer
	now             func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	bg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       256,
		idempotencySize: 10000,
		jobRetention:    30 * time.Minute,
		labelTTL:        time.Minute,
		uploadMaxBytes:  10 << 20,
		uploadTTL:       30 * time.Minute,
		apiPrefix:       "/api",
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.prefix = basepath.New(s.basePath)

	// Labels and uploads work before Start so pages can render while the
	// job pipeline is still coming up.
	s.labels = labels.NewLoader(s.assetsFS(), labels.WithTTL(s.labelTTL), labels.WithLogger(s.log().Named("labels")))
	s.uploads = uploads.NewStore(
		uploads.WithMaxBytes(s.uploadMaxBytes),
		uploads.WithTTL(s.uploadTTL),
		uploads.WithThumbnailSize(s.uploadThumbPx),
		uploads.WithMaxPixels(s.uploadMaxPixels),
		uploads.WithClock(s.now),
	)
	return s
}

func (s *Service) log() logger.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logger.Nop()
}

func (s *Service) assetsFS() fs.FS {
	if s.assets != nil {
		return s.assets
	}
	return emptyFS{}
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Start initializes and starts the job pipeline and the upload sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.generator == nil {
		return ErrNoGenerator
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting try-on service...", logger.String("backend", s.backend))

	s.jobs = repository.NewMemoryStore(ctx, repository.WithRetention(s.jobRetention), repository.WithClock(s.now))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.idempotencySize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))

	gen := &instrumentedGenerator{backend: s.backend, next: s.generator}
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, gen, s.jobs,
		workerpool.WithJobTimeout(s.jobTimeout),
		workerpool.WithClock(s.now),
	)
	s.workerPool.Start(ctx)

	s.stopCh = make(chan struct{})
	s.bg.Add(1)
	go s.sweepUploads(ctx)

	s.started = true
	s.logger.Info(ctx, "try-on service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("idempotencySize", s.idempotencySize),
	)
	return nil
}

func (s *Service) sweepUploads(ctx context.Context) {
	defer s.bg.Done()
	ticker := time.NewTicker(uploadSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.uploads.Sweep(s.now()); n > 0 {
				s.logger.Debug(ctx, "expired uploads removed", logger.Int("count", n))
			}
		}
	}
}

// Stop gracefully shuts down the service and revokes every upload.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping try-on service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	_ = s.jobs.Close()

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.bg.Wait()

	revoked := s.uploads.RevokeAll()
	s.started = false
	s.logger.Info(ctx, "try-on service stopped", logger.Int("uploadsRevoked", revoked))
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Backend returns the configured generator name.
func (s *Service) Backend() string { return s.backend }

// Generate validates p and runs it synchronously.
func (s *Service) Generate(ctx context.Context, p tryon.Payload) (tryon.Result, error) {
	p, err := p.Validate()
	if err != nil {
		return tryon.Result{}, err
	}
	if s.generator == nil {
		return tryon.Result{}, ErrNoGenerator
	}
	gen := &instrumentedGenerator{backend: s.backend, next: s.generator}
	return gen.Generate(ctx, p)
}

// SubmitJob validates p, stores a pending job and queues it. With a
// non-empty idempotency key a repeated submission returns the original job
// and created=false.
func (s *Service) SubmitJob(ctx context.Context, p tryon.Payload, idempotencyKey string) (job model.Job, created bool, err error) {
	if !s.running() {
		return model.Job{}, false, ErrNotStarted
	}
	p, err = p.Validate()
	if err != nil {
		return model.Job{}, false, err
	}

	id := uuid.NewString()
	if idempotencyKey == "" {
		job, err = s.submit(ctx, p, "", id)
		return job, err == nil, err
	}

	// Submissions sharing a key run one at a time; callers that join an
	// in-flight submission get its job back as a replay.
	v, err, _ := s.submitting.Do(idempotencyKey, func() (any, error) {
		return s.submitKeyed(ctx, p, idempotencyKey, id)
	})
	if err != nil {
		return model.Job{}, false, err
	}
	res := v.(keyedSubmission)
	created = res.created && res.job.ID == id
	if !created {
		metrics.RecordJobDuplicate()
	}
	return res.job, created, nil
}

type keyedSubmission struct {
	job     model.Job
	created bool
}

// submitKeyed must only run inside s.submitting for key.
func (s *Service) submitKeyed(ctx context.Context, p tryon.Payload, key, id string) (keyedSubmission, error) {
	bound, claimed := s.deduper.Claim(ctx, key, id)
	if !claimed {
		existing, err := s.jobs.Get(ctx, bound)
		if err == nil {
			return keyedSubmission{job: existing}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return keyedSubmission{}, err
		}
		// the bound job was swept; rebind the key
		s.deduper.Release(ctx, key)
		if _, claimed = s.deduper.Claim(ctx, key, id); !claimed {
			return keyedSubmission{}, fmt.Errorf("rebind idempotency key: %w", err)
		}
	}

	job, err := s.submit(ctx, p, key, id)
	if err != nil {
		return keyedSubmission{}, err
	}
	return keyedSubmission{job: job, created: true}, nil
}

// submit stores and queues a new pending job. On failure the job is removed
// and key, when set, is released.
func (s *Service) submit(ctx context.Context, p tryon.Payload, key, id string) (model.Job, error) {
	now := s.now()
	job := model.Job{
		ID:             id,
		IdempotencyKey: key,
		Status:         model.JobPending,
		Payload:        p,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.release(ctx, key)
		return model.Job{}, err
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.jobs.Delete(ctx, id)
		s.release(ctx, key)
		metrics.RecordJobRejected()
		if errors.Is(err, jobqueue.ErrFull) || errors.Is(err, jobqueue.ErrClosed) {
			return model.Job{}, ErrQueueFull
		}
		return model.Job{}, err
	}

	metrics.RecordJobSubmitted()
	s.logger.Debug(ctx, "try-on job queued", logger.String("job_id", id))
	return job, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if key != "" {
		s.deduper.Release(ctx, key)
	}
}

// Job returns the job with id.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	if !s.running() {
		return model.Job{}, ErrNotStarted
	}
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Job{}, ErrJobNotFound
	}
	return job, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":         s.started,
		"backend":         s.backend,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"idempotencySize": s.idempotencySize,
		"uploads":         s.uploads.Len(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["jobs"] = s.jobs.Count(ctx)
		stats["idempotencyKeys"] = s.deduper.Size()
	}
	return stats
}
