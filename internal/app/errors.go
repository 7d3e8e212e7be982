package service

import "errors"

// Sentinel kinds returned to the HTTP layer.
var (
	ErrNotStarted  = errors.New("service not started")
	ErrQueueFull   = errors.New("try-on queue is full")
	ErrJobNotFound = errors.New("job not found")
	ErrNoGenerator = errors.New("no try-on generator configured")
)
