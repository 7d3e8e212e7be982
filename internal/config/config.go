// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers defaults, an optional YAML file and UNITRY_* env vars.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"
	"strings"
	"time"
)

// Try-on backends understood by the service.
const (
	BackendDiffusion = "diffusion"
	BackendLiblib    = "liblib"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ProjectName is reported by GET {api_prefix}.
	ProjectName string `koanf:"project_name"`

	// APIPrefix mounts the JSON API, e.g. "/api".
	APIPrefix string `koanf:"api_prefix"`

	// BasePath prefixes every page and asset URL for sub-path deployments.
	BasePath string `koanf:"base_path"`

	// AssetsDir is the directory served under /assets/ (outfit images, label.json).
	AssetsDir string `koanf:"assets_dir"`

	// LabelCacheTTLMS bounds how long a parsed label.json is reused.
	LabelCacheTTLMS int `koanf:"label_cache_ttl_ms"`

	// CORSAllowedOrigins is a comma separated origin list; "*" allows any.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// TryOnBackend selects the generator: "diffusion" or "liblib".
	TryOnBackend string `koanf:"tryon_backend"`

	// DiffusionServiceURL is the inference endpoint of the diffusion micro-service.
	DiffusionServiceURL string `koanf:"diffusion_service_url"`
	DiffusionTimeoutMS  int    `koanf:"diffusion_timeout_ms"`

	// LiblibAI OpenAPI credentials and polling limits.
	LiblibBaseURL        string `koanf:"liblib_base_url"`
	LiblibAccessKey      string `koanf:"liblib_access_key"`
	LiblibSecretKey      string `koanf:"liblib_secret_key"`
	LiblibMaxWaitMS      int    `koanf:"liblib_max_wait_ms"`
	LiblibPollIntervalMS int    `koanf:"liblib_poll_interval_ms"`

	// JobQueueSize bounds the in-memory try-on job queue.
	JobQueueSize int `koanf:"job_queue_size"`

	// JobWorkerCount sets the number of try-on workers.
	JobWorkerCount int `koanf:"job_worker_count"`

	// JobRetentionMS keeps finished jobs readable for this long.
	JobRetentionMS int `koanf:"job_retention_ms"`

	// IdempotencySize caps the number of remembered Idempotency-Key values.
	IdempotencySize int `koanf:"idempotency_size"`

	// UploadMaxBytes caps a single preview upload.
	UploadMaxBytes int64 `koanf:"upload_max_bytes"`

	// UploadTTLMS expires preview uploads that were never replaced.
	UploadTTLMS int `koanf:"upload_ttl_ms"`

	// UploadMaxPixels caps width*height of an uploaded image.
	UploadMaxPixels int `koanf:"upload_max_pixels"`

	// UploadThumbnailPx is the longer side of generated previews.
	UploadThumbnailPx int `koanf:"upload_thumbnail_px"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":8000",
		ProjectName:          "UniTry Backend",
		APIPrefix:            "/api",
		BasePath:             "",
		AssetsDir:            "public/assets",
		LabelCacheTTLMS:      60_000,
		CORSAllowedOrigins:   "*",
		TryOnBackend:         BackendDiffusion,
		DiffusionServiceURL:  "http://localhost:9000/infer",
		DiffusionTimeoutMS:   60_000,
		LiblibBaseURL:        "https://openapi.liblibai.cloud",
		LiblibMaxWaitMS:      20_000,
		LiblibPollIntervalMS: 1_000,
		JobQueueSize:         256,
		JobWorkerCount:       runtime.NumCPU(),
		JobRetentionMS:       30 * 60_000,
		IdempotencySize:      10_000,
		UploadMaxBytes:       10 << 20,
		UploadTTLMS:          30 * 60_000,
		UploadMaxPixels:      40_000_000,
		UploadThumbnailPx:    480,
	}
}

// AllowedOrigins splits CORSAllowedOrigins into trimmed, non-empty entries.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// NormalizeAPIPrefix trims surrounding space and trailing slashes, so
// "/api/" and "/api" mount the same routes.
func NormalizeAPIPrefix(prefix string) string {
	return strings.TrimRight(strings.TrimSpace(prefix), "/")
}

// Millis converts one of the *_MS fields into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
