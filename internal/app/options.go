package service

import (
	"io/fs"
	"strings"
	"time"

	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of waiting jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencySize sets how many Idempotency-Key values are remembered.
func WithIdempotencySize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.idempotencySize = size
		}
	}
}

// WithJobRetention sets how long finished jobs stay readable.
func WithJobRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobRetention = d
		}
	}
}

// WithJobTimeout bounds one queued generation.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithGenerator sets the try-on backend and the name it is reported under.
func WithGenerator(name string, g tryon.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.backend = name
			s.generator = g
		}
	}
}

// WithAssets sets the directory tree holding outfits_<gender>/label.json.
func WithAssets(fsys fs.FS) Option {
	return func(s *Service) {
		if fsys != nil {
			s.assets = fsys
		}
	}
}

// WithLabelTTL sets how long a loaded label file is reused.
func WithLabelTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.labelTTL = d
		}
	}
}

// WithUploadLimits sets the upload size limit and lifetime.
func WithUploadLimits(maxBytes int64, ttl time.Duration) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.uploadMaxBytes = maxBytes
		}
		if ttl > 0 {
			s.uploadTTL = ttl
		}
	}
}

// WithUploadImageLimits sets the longer preview side and the largest
// accepted width*height of an upload.
func WithUploadImageLimits(thumbnailPx, maxPixels int) Option {
	return func(s *Service) {
		if thumbnailPx > 0 {
			s.uploadThumbPx = thumbnailPx
		}
		if maxPixels > 0 {
			s.uploadMaxPixels = maxPixels
		}
	}
}

// WithBasePath sets the sub-path every generated URL is prefixed with.
func WithBasePath(base string) Option {
	return func(s *Service) {
		s.basePath = base
	}
}

// WithAPIPrefix sets the mount point of the JSON API, used for upload URLs.
func WithAPIPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
			s.apiPrefix = prefix
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
