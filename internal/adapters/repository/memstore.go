package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/pkg/metrics"
)

// MemoryStore keeps jobs in a map. Nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	jobs          map[string]model.Job
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs a job store and starts its retention sweeper.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:          make(map[string]model.Job),
		retention:     30 * time.Minute,
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startSweeper(ctx)
	return s
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx, s.now().Add(-s.retention))
			}
		}
	}()
}

// Close stops the sweeper goroutine.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) Create(_ context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrDuplicate
	}
	s.jobs[job.ID] = job
	metrics.UpdateJobsStored(len(s.jobs))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.Job)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	fn(&job)
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	metrics.UpdateJobsStored(len(s.jobs))
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.Finished() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	metrics.UpdateJobsStored(len(s.jobs))
	return removed
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
