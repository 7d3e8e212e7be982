// Package uploads keeps the preview images visitors upload, one per session.
//
// It is the server-side stand-in for a browser object URL: a new upload
// for a session revokes the previous one, and everything is revoked when
// the store shuts down.
package uploads

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/okian/unitry/pkg/metrics"
)

// Sentinel kinds for upload errors.
var (
	ErrTooLarge    = errors.New("upload too large")
	ErrUnsupported = errors.New("unsupported image type")
	ErrDecode      = errors.New("image cannot be decoded")
	ErrNotFound    = errors.New("upload not found")
	ErrEmpty       = errors.New("upload is empty")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Upload is one stored image and its preview.
type Upload struct {
	ID          string    `json:"id"`
	Session     string    `json:"-"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CreatedAt   time.Time `json:"created_at"`

	Data      []byte `json:"-"`
	Thumb     []byte `json:"-"`
	ThumbType string `json:"-"`
}

// ETag is a strong validator for the upload bytes.
func (u *Upload) ETag() string {
	return `"` + u.ID + "-" + strconv.FormatInt(u.Size, 10) + `"`
}

// Store holds uploads in memory.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*Upload
	bySession map[string]string

	maxBytes  int64
	ttl       time.Duration
	maxThumb  int
	maxPixels int
	now       func() time.Time
	newID     func() string
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMaxBytes sets the upload size limit.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithTTL sets how long an upload lives before Sweep removes it.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithThumbnailSize sets the longer thumbnail side.
func WithThumbnailSize(px int) Option {
	return func(s *Store) {
		if px > 0 {
			s.maxThumb = px
		}
	}
}

// WithMaxPixels sets the largest accepted width*height.
func WithMaxPixels(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID:      make(map[string]*Upload),
		bySession: make(map[string]string),
		maxBytes:  10 << 20,
		ttl:       30 * time.Minute,
		maxThumb:  ThumbnailMaxDimension,
		maxPixels: MaxPixels,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes returns the configured size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Put stores data as the current upload of session and revokes the one it
// replaces. It returns the stored upload and the id of the revoked one.
func (s *Store) Put(_ context.Context, session, fileName string, data []byte) (Upload, string, error) {
	size := int64(len(data))
	switch {
	case size == 0:
		metrics.RecordUpload("empty", 0)
		return Upload{}, "", ErrEmpty
	case size > s.maxBytes:
		metrics.RecordUpload("too_large", size)
		return Upload{}, "", ErrTooLarge
	}

	ct := mimetype.Detect(data).String()
	if !allowedTypes[ct] {
		metrics.RecordUpload("unsupported", size)
		return Upload{}, "", ErrUnsupported
	}

	thumb, thumbType, w, h, err := thumbnail(data, ct, s.maxThumb, s.maxPixels)
	if err != nil {
		outcome := "decode_error"
		if errors.Is(err, ErrTooLarge) {
			outcome = "too_many_pixels"
		}
		metrics.RecordUpload(outcome, size)
		return Upload{}, "", err
	}

	u := &Upload{
		ID:          s.newID(),
		Session:     session,
		FileName:    fileName,
		ContentType: ct,
		Size:        size,
		Width:       w,
		Height:      h,
		CreatedAt:   s.now(),
		Data:        data,
		Thumb:       thumb,
		ThumbType:   thumbType,
	}

	s.mu.Lock()
	revoked := s.bySession[session]
	if revoked != "" {
		delete(s.byID, revoked)
	}
	s.byID[u.ID] = u
	s.bySession[session] = u.ID
	count := len(s.byID)
	s.mu.Unlock()

	metrics.RecordUpload("accepted", size)
	metrics.UpdateUploadsStored(count)
	return *u, revoked, nil
}

// Get returns the upload with id.
func (s *Store) Get(_ context.Context, id string) (Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return Upload{}, ErrNotFound
	}
	return *u, nil
}

// Current returns the latest upload of session.
func (s *Store) Current(_ context.Context, session string) (Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySession[session]
	if !ok {
		return Upload{}, ErrNotFound
	}
	return *s.byID[id], nil
}

// Revoke deletes the current upload of session. It reports whether one existed.
func (s *Store) Revoke(_ context.Context, session string) bool {
	s.mu.Lock()
	id, ok := s.bySession[session]
	if ok {
		delete(s.bySession, session)
		delete(s.byID, id)
	}
	count := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateUploadsStored(count)
	return ok
}

// Sweep removes uploads older than the TTL and returns how many went.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	removed := 0
	for id, u := range s.byID {
		if u.CreatedAt.Before(cutoff) {
			delete(s.byID, id)
			if s.bySession[u.Session] == id {
				delete(s.bySession, u.Session)
			}
			removed++
		}
	}
	count := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateUploadsStored(count)
	return removed
}

// RevokeAll empties the store.
func (s *Store) RevokeAll() int {
	s.mu.Lock()
	n := len(s.byID)
	s.byID = make(map[string]*Upload)
	s.bySession = make(map[string]string)
	s.mu.Unlock()

	metrics.UpdateUploadsStored(0)
	return n
}

// Len returns the number of stored uploads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
