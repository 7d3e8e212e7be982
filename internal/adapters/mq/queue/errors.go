package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = errors.New("job queue full")
	ErrClosed = errors.New("job queue closed")
)
