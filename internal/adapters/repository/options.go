package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention sets how long finished jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithSweepInterval sets how often expired jobs are removed.
func WithSweepInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
