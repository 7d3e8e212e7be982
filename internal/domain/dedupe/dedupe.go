// Package dedupe tracks Idempotency-Key headers for job submission.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

// Deduper maps client idempotency keys to the job they created.
type Deduper interface {
	// Claim atomically binds key to jobID unless key is already bound.
	// It returns the bound job id and whether this call created the binding.
	Claim(ctx context.Context, key, jobID string) (string, bool)

	// Release drops key so the client may retry, used when a claimed job
	// could not be enqueued.
	Release(ctx context.Context, key string)

	// Lookup returns the job bound to key.
	Lookup(ctx context.Context, key string) (string, bool)

	Size() int64
}

type entry struct {
	key   string
	jobID string
}

// inMemoryDeduper keeps at most maxSize keys and evicts the oldest claim
// first. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.keys = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key, jobID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		return el.Value.(*entry).jobID, false
	}

	if d.maxSize > 0 && len(d.keys) >= d.maxSize {
		d.evictOldest()
	}

	d.keys[key] = d.order.PushFront(&entry{key: key, jobID: jobID})
	d.size.Add(1)
	return jobID, true
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		d.order.Remove(el)
		delete(d.keys, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Lookup(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		return el.Value.(*entry).jobID, true
	}
	return "", false
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.keys, el.Value.(*entry).key)
	d.size.Add(-1)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
