package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/unitry/internal/adapters/diffusion"
	"github.com/okian/unitry/internal/adapters/http/api"
	"github.com/okian/unitry/internal/adapters/liblib"
	app "github.com/okian/unitry/internal/app"
	"github.com/okian/unitry/internal/config"
	"github.com/okian/unitry/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(&bytes.Buffer{})); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "outfits_man"), 0o755); err != nil {
		t.Fatal(err)
	}
	label := []byte(`{"hat1.jpg":{"label":"棒球帽","content":"深色棒球帽"}}`)
	if err := os.WriteFile(filepath.Join(dir, "outfits_man", "label.json"), label, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.AssetsDir = dir
	cfg.BasePath = "/unitry/"
	cfg.JobWorkerCount = 1
	return cfg
}

func TestBuildGenerator(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		cfg := config.New()
		log := logger.Get()

		convey.Convey("When the backend is diffusion", func() {
			g, err := buildGenerator(cfg, log)
			convey.So(err, convey.ShouldBeNil)
			_, ok := g.(*diffusion.Client)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the backend is liblib", func() {
			cfg.TryOnBackend = config.BackendLiblib
			cfg.LiblibAccessKey, cfg.LiblibSecretKey = "ak", "sk"
			g, err := buildGenerator(cfg, log)
			convey.So(err, convey.ShouldBeNil)
			_, ok := g.(*liblib.Generator)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.TryOnBackend = "local"
			_, err := buildGenerator(cfg, log)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the assembled handler under a base path", t, func() {
		cfg := testConfig(t)
		ctx := context.Background()
		gen, err := buildGenerator(cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)

		svc := newService(cfg, gen, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h, err := newHandler(ctx, cfg, svc, logger.Get())
		convey.So(err, convey.ShouldBeNil)

		get := func(target string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			return w
		}

		convey.Convey("Then the API answers below the base path", func() {
			w := get("/unitry/api")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, api.RootMessage)
		})

		convey.Convey("Then the pages, docs and probes are mounted", func() {
			convey.So(get("/unitry/").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/unitry/demo").Body.String(), convey.ShouldContainSubstring, "/unitry/assets/outfits_man/")
			convey.So(get("/unitry/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/unitry/healthz").Body.String(), convey.ShouldEqual, "ok")
			convey.So(get("/unitry/metrics").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/unitry/assets/outfits_man/label.json").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then the bare base path redirects", func() {
			w := get("/unitry")
			convey.So(w.Code, convey.ShouldEqual, http.StatusMovedPermanently)
			convey.So(w.Header().Get("Location"), convey.ShouldEqual, "/unitry/")
		})

		convey.Convey("Then paths outside the base path are not found", func() {
			convey.So(get("/api").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestMount(t *testing.T) {
	convey.Convey("Given an empty base path", t, func() {
		inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		w := httptest.NewRecorder()
		mount("", inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))
		convey.So(w.Code, convey.ShouldEqual, http.StatusTeapot)
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then system metrics update without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then service metrics update for a stopped service", func() {
			svc := app.New()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updater loops return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, app.New())
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("updaters did not stop")
			}
		})
	})
}
