package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read outside the UNITRY_ prefix.
const (
	envConfigFile   = "UNITRY_CONFIG"
	envLegacyBase   = "NEXT_PUBLIC_BASE_PATH"
	envLegacyAccess = "ACCESS_KEY"
	envLegacySecret = "SECRET_KEY"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if UNITRY_CONFIG is set
//  3. env (prefix UNITRY_)
//
// NEXT_PUBLIC_BASE_PATH, ACCESS_KEY and SECRET_KEY are honoured when the
// corresponding UNITRY_ keys are left empty.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// UNITRY_JOB_QUEUE_SIZE -> job_queue_size (flat keys, underscores kept)
	envProvider := env.Provider("UNITRY_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "unitry_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg.APIPrefix = NormalizeAPIPrefix(cfg.APIPrefix)
	if cfg.BasePath == "" {
		cfg.BasePath = os.Getenv(envLegacyBase)
	}
	if cfg.LiblibAccessKey == "" {
		cfg.LiblibAccessKey = os.Getenv(envLegacyAccess)
	}
	if cfg.LiblibSecretKey == "" {
		cfg.LiblibSecretKey = os.Getenv(envLegacySecret)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the server relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !strings.HasPrefix(c.APIPrefix, "/") || NormalizeAPIPrefix(c.APIPrefix) == "":
		return fmt.Errorf("%w: api_prefix must start with / and name a path", ErrInvalidConfig)
	case c.AssetsDir == "":
		return fmt.Errorf("%w: assets_dir must not be empty", ErrInvalidConfig)
	case c.JobQueueSize < 1:
		return fmt.Errorf("%w: job_queue_size must be positive", ErrInvalidConfig)
	case c.UploadMaxBytes < 1:
		return fmt.Errorf("%w: upload_max_bytes must be positive", ErrInvalidConfig)
	case c.UploadMaxPixels < 1:
		return fmt.Errorf("%w: upload_max_pixels must be positive", ErrInvalidConfig)
	case c.UploadThumbnailPx < 1:
		return fmt.Errorf("%w: upload_thumbnail_px must be positive", ErrInvalidConfig)
	}

	switch c.TryOnBackend {
	case BackendDiffusion:
		if c.DiffusionServiceURL == "" {
			return fmt.Errorf("%w: diffusion_service_url must not be empty", ErrInvalidConfig)
		}
	case BackendLiblib:
		if c.LiblibAccessKey == "" || c.LiblibSecretKey == "" {
			return fmt.Errorf("%w: liblib backend needs liblib_access_key and liblib_secret_key", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown tryon_backend %q", ErrInvalidConfig, c.TryOnBackend)
	}
	return nil
}
