// Package labels loads the per-gender label.json sidecar files.
//
// A sidecar maps an asset file name to a caption and a longer description:
//
//	{"hat1.jpg": {"label": "渔夫帽", "content": "..."}}
package labels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// ErrDecode is returned when a label file is not a JSON object of labels.
var ErrDecode = errors.New("decode label file")

// Label is the caption shown over a garment thumbnail.
type Label struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Set is the content of one label.json keyed by asset file name.
type Set map[string]Label

type cached struct {
	set     Set
	err     error
	expires time.Time
}

// Loader reads label files from an fs.FS rooted at the assets directory.
type Loader struct {
	fsys  fs.FS
	ttl   time.Duration
	now   func() time.Time
	log   logger.Logger
	group singleflight.Group

	mu    sync.Mutex
	cache map[catalog.Gender]cached
}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithTTL sets how long a loaded file (or a failure) is reused.
// Zero disables caching.
func WithTTL(d time.Duration) Option {
	return func(l *Loader) {
		if d >= 0 {
			l.ttl = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for failed loads.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader returns a Loader over fsys.
func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:  fsys,
		ttl:   time.Minute,
		now:   time.Now,
		log:   logger.Nop(),
		cache: make(map[catalog.Gender]cached),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path is the label file location inside the assets fs.
func Path(g catalog.Gender) string {
	return "outfits_" + string(g) + "/label.json"
}

// Load returns the label set of g. Concurrent calls for the same gender
// share one read; a failed read is logged once and cached like a success.
func (l *Loader) Load(ctx context.Context, g catalog.Gender) (Set, error) {
	if c, ok := l.cached(g); ok {
		return c.set, c.err
	}

	v, err, _ := l.group.Do(string(g), func() (any, error) {
		set, err := l.read(g)
		if err != nil {
			l.log.Warn(ctx, "label load failed", logger.String("gender", string(g)), logger.Error(err))
		}
		l.store(g, set, err)
		return set, err
	})
	if err != nil {
		return nil, err
	}
	return v.(Set), nil
}

// Lookup returns the label of fileName for g. Failed loads are reported as
// no label.
func (l *Loader) Lookup(ctx context.Context, g catalog.Gender, fileName string) (Label, bool) {
	set, err := l.Load(ctx, g)
	if err != nil {
		return Label{}, false
	}
	lbl, ok := set[fileName]
	return lbl, ok
}

// Invalidate drops every cached entry.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[catalog.Gender]cached)
}

func (l *Loader) cached(g catalog.Gender) (cached, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cache[g]
	if !ok || !l.now().Before(c.expires) {
		return cached{}, false
	}
	return c, true
}

func (l *Loader) store(g catalog.Gender, set Set, err error) {
	if l.ttl == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[g] = cached{set: set, err: err, expires: l.now().Add(l.ttl)}
}

func (l *Loader) read(g catalog.Gender) (Set, error) {
	raw, err := fs.ReadFile(l.fsys, Path(g))
	if err != nil {
		metrics.RecordLabelLoad(string(g), "read_error")
		return nil, fmt.Errorf("read %s: %w", Path(g), err)
	}
	set := Set{}
	if err := json.Unmarshal(raw, &set); err != nil {
		metrics.RecordLabelLoad(string(g), "decode_error")
		return nil, fmt.Errorf("%w %s: %v", ErrDecode, Path(g), err)
	}
	metrics.RecordLabelLoad(string(g), "ok")
	return set, nil
}
