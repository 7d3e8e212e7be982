package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/unitry/internal/adapters/diffusion"
	"github.com/okian/unitry/internal/adapters/http/api"
	"github.com/okian/unitry/internal/adapters/http/site"
	"github.com/okian/unitry/internal/adapters/http/swagger"
	"github.com/okian/unitry/internal/adapters/liblib"
	app "github.com/okian/unitry/internal/app"
	"github.com/okian/unitry/internal/config"
	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/okian/unitry/internal/domain/tryon"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 90 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	jobTimeout                = 2 * time.Minute
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogJSON)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	generator, err := buildGenerator(cfg, loggerInstance)
	if err != nil {
		loggerInstance.Fatal(ctx, "failed to build try-on generator", logger.Error(err))
	}

	svc := newService(cfg, generator, loggerInstance)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Fatal(ctx, "failed to start service", logger.Error(err))
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	handler, err := newHandler(ctx, cfg, svc, loggerInstance)
	if err != nil {
		loggerInstance.Fatal(ctx, "failed to build routes", logger.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("base_path", basepath.Normalize(cfg.BasePath)),
			logger.String("backend", cfg.TryOnBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	loggerInstance.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(shutdownCtx, "server stopped")
}

// buildGenerator returns the configured try-on backend.
func buildGenerator(cfg *config.Config, log logger.Logger) (tryon.Generator, error) {
	switch cfg.TryOnBackend {
	case config.BackendDiffusion:
		return diffusion.New(cfg.DiffusionServiceURL,
			diffusion.WithTimeout(config.Millis(cfg.DiffusionTimeoutMS)),
		), nil
	case config.BackendLiblib:
		client := liblib.New(cfg.LiblibAccessKey, cfg.LiblibSecretKey,
			liblib.WithBaseURL(cfg.LiblibBaseURL),
			liblib.WithMaxWait(config.Millis(cfg.LiblibMaxWaitMS)),
			liblib.WithPollInterval(config.Millis(cfg.LiblibPollIntervalMS)),
			liblib.WithLogger(log.Named("liblib")),
		)
		return liblib.NewGenerator(client), nil
	default:
		return nil, fmt.Errorf("%w: unknown tryon_backend %q", config.ErrInvalidConfig, cfg.TryOnBackend)
	}
}

func newService(cfg *config.Config, generator tryon.Generator, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithGenerator(cfg.TryOnBackend, generator),
		app.WithWorkerCount(cfg.JobWorkerCount),
		app.WithQueueSize(cfg.JobQueueSize),
		app.WithIdempotencySize(cfg.IdempotencySize),
		app.WithJobRetention(config.Millis(cfg.JobRetentionMS)),
		app.WithJobTimeout(jobTimeout),
		app.WithAssets(os.DirFS(cfg.AssetsDir)),
		app.WithLabelTTL(config.Millis(cfg.LabelCacheTTLMS)),
		app.WithUploadLimits(cfg.UploadMaxBytes, config.Millis(cfg.UploadTTLMS)),
		app.WithUploadImageLimits(cfg.UploadThumbnailPx, cfg.UploadMaxPixels),
		app.WithBasePath(cfg.BasePath),
		app.WithAPIPrefix(cfg.APIPrefix),
	)
}

// newHandler registers every route and mounts them under the base path.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	api.NewServer(svc,
		api.WithPrefix(cfg.APIPrefix),
		api.WithProjectName(cfg.ProjectName),
		api.WithAllowedOrigins(cfg.AllowedOrigins()),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	pages, err := site.New(svc, site.WithAssets(os.DirFS(cfg.AssetsDir)), site.WithLogger(log.Named("site")))
	if err != nil {
		return nil, err
	}
	pages.Register(ctx, mux)

	swagger.Register(ctx, mux, svc.Prefixer())

	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	return mount(svc.Prefixer().Base(), mux), nil
}

// mount serves h below base. The bare base redirects to base + "/".
func mount(base string, h http.Handler) http.Handler {
	if base == "" {
		return h
	}
	outer := http.NewServeMux()
	outer.Handle(base+"/", http.StripPrefix(base, h))
	outer.Handle(base, http.RedirectHandler(base+"/", http.StatusMovedPermanently))
	return outer
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateJobQueueSize(queueLen)
	}
	if jobs, ok := stats["jobs"].(int); ok {
		metrics.UpdateJobsStored(jobs)
	}
	if n, ok := stats["uploads"].(int); ok {
		metrics.UpdateUploadsStored(n)
	}
}
