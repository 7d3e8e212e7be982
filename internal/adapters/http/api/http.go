// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/unitry/internal/adapters/diffusion"
	"github.com/okian/unitry/internal/adapters/labels"
	"github.com/okian/unitry/internal/adapters/liblib"
	"github.com/okian/unitry/internal/adapters/uploads"
	service "github.com/okian/unitry/internal/app"
	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/internal/domain/detect"
	"github.com/okian/unitry/internal/domain/model"
	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Generate(ctx context.Context, p tryon.Payload) (tryon.Result, error)
	SubmitJob(ctx context.Context, p tryon.Payload, idempotencyKey string) (model.Job, bool, error)
	Job(ctx context.Context, id string) (model.Job, error)

	Catalog(ctx context.Context, g catalog.Gender) (service.CatalogView, error)
	Labels(ctx context.Context, g catalog.Gender) labels.Set
	Detect(fileName string) detect.Result

	Upload(ctx context.Context, session, fileName string, data []byte) (service.UploadView, error)
	UploadByID(ctx context.Context, id string) (uploads.Upload, error)
	MaxUploadBytes() int64

	Prefixer() basepath.Prefixer
	GetStats() map[string]any
}

// Option configures a Server.
type Option func(*Server)

// WithPrefix sets the mount point of every API route. Default "/api".
func WithPrefix(prefix string) Option {
	return func(s *Server) {
		if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithProjectName sets the name reported by the root route.
func WithProjectName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.projectName = name
		}
	}
}

// WithAllowedOrigins sets the CORS origin allow list; "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the try-on API.
type Server struct {
	prefix      string
	projectName string
	origins     []string
	logger      logger.Logger

	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	tryOnHandler   *TryOnHandler
	catalogHandler *CatalogHandler
	uploadHandler  *UploadHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		prefix:      "/api",
		projectName: "UniTry Backend",
		origins:     []string{"*"},
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(s.projectName)
	s.statsHandler = NewStatsHandler(deps)
	s.tryOnHandler = NewTryOnHandler(deps, s.prefix, s.logger)
	s.catalogHandler = NewCatalogHandler(deps)
	s.uploadHandler = NewUploadHandler(deps, s.logger)
	return s
}

// Prefix returns the API mount point.
func (s *Server) Prefix() string { return s.prefix }

// Register attaches all API routes to mux under the configured prefix.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	p := s.prefix
	routes := http.NewServeMux()

	routes.HandleFunc("GET "+p, MetricsMiddleware(s.healthHandler.HandleRoot, "root"))
	routes.HandleFunc("GET "+p+"/{$}", MetricsMiddleware(s.healthHandler.HandleRoot, "root"))
	routes.HandleFunc("GET "+p+"/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	routes.HandleFunc("GET "+p+"/try-on/health", MetricsMiddleware(s.healthHandler.HandleTryOnHealth, "tryon_health"))
	routes.HandleFunc("POST "+p+"/try-on/{$}", MetricsMiddleware(s.tryOnHandler.HandleGenerate, "tryon"))
	routes.HandleFunc("POST "+p+"/try-on", MetricsMiddleware(s.tryOnHandler.HandleGenerate, "tryon"))
	routes.HandleFunc("POST "+p+"/try-on/jobs", MetricsMiddleware(s.tryOnHandler.HandleSubmitJob, "tryon_jobs"))
	routes.HandleFunc("GET "+p+"/try-on/jobs/{id}", MetricsMiddleware(s.tryOnHandler.HandleGetJob, "tryon_job"))

	routes.HandleFunc("GET "+p+"/catalog/{gender}", MetricsMiddleware(s.catalogHandler.HandleCatalog, "catalog"))
	routes.HandleFunc("GET "+p+"/labels/{gender}", MetricsMiddleware(s.catalogHandler.HandleLabels, "labels"))
	routes.HandleFunc("GET "+p+"/detect", MetricsMiddleware(s.catalogHandler.HandleDetect, "detect"))

	routes.HandleFunc("POST "+p+"/uploads", MetricsMiddleware(s.uploadHandler.HandleUpload, "uploads"))
	routes.HandleFunc("GET "+p+"/uploads/{id}", MetricsMiddleware(s.uploadHandler.HandleGetUpload, "upload"))
	routes.HandleFunc("GET "+p+"/uploads/{id}/thumb", MetricsMiddleware(s.uploadHandler.HandleGetThumb, "upload_thumb"))

	h := CORSMiddleware(routes, s.origins)
	mux.Handle(p, h)
	mux.Handle(p+"/", h)
}

type errorResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Fields  []tryon.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *tryon.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

// classify maps a domain or adapter error to a status code and error code.
func classify(err error) (int, string) {
	var (
		verr   *tryon.ValidationError
		apiErr *liblib.APIError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, ErrBadRequest), errors.Is(err, uploads.ErrDecode), errors.Is(err, uploads.ErrEmpty):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, uploads.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, uploads.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, service.ErrJobNotFound), errors.Is(err, uploads.ErrNotFound), errors.Is(err, catalog.ErrUnknownGender):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrNoGenerator):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, liblib.ErrWaitExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, diffusion.ErrUpstream),
		errors.Is(err, diffusion.ErrInvalidResponse),
		errors.Is(err, liblib.ErrGenerationFailed),
		errors.Is(err, liblib.ErrTransport),
		errors.Is(err, liblib.ErrNoImages),
		errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with its classified status, logging server-side failures.
func fail(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error(ctx, "request failed", logger.Int("status", status), logger.Error(err))
	}
	writeError(w, status, code, err)
}
