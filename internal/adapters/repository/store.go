// Package repository defines the try-on job store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/unitry/internal/domain/model"
)

// Store provides read/write access to try-on jobs.
type Store interface {
	// Create stores a new job. Returns ErrDuplicate if the id exists.
	Create(ctx context.Context, job model.Job) error

	// Get returns a copy of the job.
	// Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (model.Job, error)

	// Update applies fn to the stored job under the store lock.
	Update(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error)

	// Delete removes a job. Missing ids are ignored.
	Delete(ctx context.Context, id string)

	// Sweep drops finished jobs last updated before cutoff and returns how
	// many were removed.
	Sweep(ctx context.Context, cutoff time.Time) int

	// Count returns the number of jobs held.
	Count(ctx context.Context) int
}
