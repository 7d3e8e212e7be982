// Package diffusion calls the external diffusion service that renders a
// try-on image from a model photo and a garment photo.
package diffusion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/unitry/internal/domain/tryon"
)

// Sentinel kinds for diffusion errors.
var (
	ErrUpstream        = errors.New("diffusion service error")
	ErrInvalidResponse = errors.New("invalid diffusion response")
)

const (
	defaultTimeout  = 60 * time.Second
	maxErrorBodyLen = 512
	maxResponseLen  = 1 << 20
)

// Client posts try-on payloads to the diffusion service.
type Client struct {
	url  string
	http *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the total request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// New returns a client for the service at url.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate implements tryon.Generator.
func (c *Client) Generate(ctx context.Context, p tryon.Payload) (tryon.Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return tryon.Result{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return tryon.Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tryon.Result{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return tryon.Result{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var res tryon.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseLen)).Decode(&res); err != nil {
		return tryon.Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if res.RequestID == "" || res.ImageURL == "" {
		return tryon.Result{}, fmt.Errorf("%w: missing request_id or image_url", ErrInvalidResponse)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	return res, nil
}
