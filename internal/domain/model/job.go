// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/unitry/internal/domain/tryon"
)

// JobStatus is the lifecycle state of an asynchronous try-on job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Finished reports whether s is terminal.
func (s JobStatus) Finished() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one queued try-on generation.
type Job struct {
	ID             string        `json:"id"`
	IdempotencyKey string        `json:"-"`
	Status         JobStatus     `json:"status"`
	Payload        tryon.Payload `json:"payload"`
	Result         *tryon.Result `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Succeed moves j to succeeded with res.
func (j *Job) Succeed(res tryon.Result, now time.Time) {
	j.Status = JobSucceeded
	j.Result = &res
	j.Error = ""
	j.UpdatedAt = now
}

// Fail moves j to failed with the error text.
func (j *Job) Fail(err error, now time.Time) {
	j.Status = JobFailed
	j.Result = nil
	if err != nil {
		j.Error = err.Error()
	}
	j.UpdatedAt = now
}
