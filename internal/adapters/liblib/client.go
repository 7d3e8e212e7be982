// Package liblib is a client for the LiblibAI OpenAPI: request signing,
// OSS uploads, text/image generation, status polling and image download.
package liblib

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the API mandates HMAC-SHA1
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
)

// DefaultBaseURL is the public OpenAPI endpoint.
const DefaultBaseURL = "https://openapi.liblibai.cloud"

// API paths.
const (
	pathModelVersion    = "/api/model/version/get"
	pathUploadSignature = "/api/generate/upload/signature"
	pathStatus          = "/api/generate/webui/status"
	pathText2Image      = "/api/generate/webui/text2img/ultra"
	pathImage2Image     = "/api/generate/webui/img2img/ultra"
)

const (
	defaultMaxWait      = 20 * time.Second
	defaultPollInterval = time.Second
	defaultHTTPTimeout  = 30 * time.Second
	maxEnvelopeLen      = 4 << 20
)

// Sentinel kinds for liblib errors.
var (
	ErrGenerationFailed = errors.New("liblib generation failed")
	ErrWaitExceeded     = errors.New("liblib generation not finished within max wait")
	ErrInvalidArgument  = errors.New("invalid liblib argument")
	ErrTransport        = errors.New("liblib request failed")
	ErrNoImages         = errors.New("liblib generation has no images")
)

// APIError is a response whose envelope code is not zero.
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("liblib %s: code %d: %s", e.Endpoint, e.Code, e.Msg)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client talks to the OpenAPI with one access/secret key pair.
type Client struct {
	base         string
	accessKey    string
	secretKey    string
	http         *http.Client
	now          func() time.Time
	nonce        func() string
	sleep        func(ctx context.Context, d time.Duration) error
	maxWait      time.Duration
	pollInterval time.Duration
	log          logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL points the client at another deployment or a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.base = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithClock overrides time.Now for signatures and wait deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNonce overrides the signature nonce generator.
func WithNonce(nonce func() string) Option {
	return func(c *Client) {
		if nonce != nil {
			c.nonce = nonce
		}
	}
}

// WithMaxWait bounds Wait.
func WithMaxWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxWait = d
		}
	}
}

// WithPollInterval sets the delay between status checks in Wait.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a client using accessKey and secretKey.
func New(accessKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		base:         DefaultBaseURL,
		accessKey:    accessKey,
		secretKey:    secretKey,
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		now:          time.Now,
		nonce:        uuid.NewString,
		sleep:        sleepCtx,
		maxWait:      defaultMaxWait,
		pollInterval: defaultPollInterval,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign returns the signature of uri for the given millisecond timestamp and
// nonce: HMAC-SHA1 over "uri&timestamp&nonce", URL-safe base64, unpadded.
func Sign(secretKey, uri, timestamp, nonce string) string {
	mac := hmac.New(sha1.New, []byte(secretKey))
	_, _ = mac.Write([]byte(uri + "&" + timestamp + "&" + nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignedURL returns the full request URL for uri with auth query parameters.
func (c *Client) SignedURL(uri string) string {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.nonce()
	q := url.Values{}
	q.Set("AccessKey", c.accessKey)
	q.Set("Signature", Sign(c.secretKey, uri, ts, nonce))
	q.Set("Timestamp", ts)
	q.Set("SignatureNonce", nonce)
	return c.base + uri + "?" + q.Encode()
}

// call posts body as JSON to uri and decodes the envelope data into out.
func (c *Client) call(ctx context.Context, uri string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", uri, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SignedURL(uri), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordLiblibRequest(uri, "transport_error")
		return fmt.Errorf("%w: %s: %v", ErrTransport, uri, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeLen)).Decode(&env); err != nil {
		metrics.RecordLiblibRequest(uri, "decode_error")
		return fmt.Errorf("%w: %s: status %d: %v", ErrTransport, uri, resp.StatusCode, err)
	}
	if env.Code != 0 {
		metrics.RecordLiblibRequest(uri, "api_error")
		c.log.Warn(ctx, "liblib api error", logger.String("uri", uri), logger.Int("code", env.Code), logger.String("msg", env.Msg))
		return &APIError{Endpoint: uri, Code: env.Code, Msg: env.Msg}
	}
	metrics.RecordLiblibRequest(uri, "ok")

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrTransport, uri, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
