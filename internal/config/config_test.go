package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/unitry/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
			convey.So(cfg.ProjectName, convey.ShouldEqual, "UniTry Backend")
			convey.So(cfg.APIPrefix, convey.ShouldEqual, "/api")
			convey.So(cfg.BasePath, convey.ShouldEqual, "")
			convey.So(cfg.TryOnBackend, convey.ShouldEqual, config.BackendDiffusion)
			convey.So(cfg.DiffusionServiceURL, convey.ShouldEqual, "http://localhost:9000/infer")
			convey.So(cfg.DiffusionTimeoutMS, convey.ShouldEqual, 60_000)
			convey.So(cfg.LiblibMaxWaitMS, convey.ShouldEqual, 20_000)
			convey.So(cfg.JobWorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.UploadMaxBytes, convey.ShouldEqual, 10<<20)
			convey.So(cfg.UploadMaxPixels, convey.ShouldEqual, 40_000_000)
			convey.So(cfg.UploadThumbnailPx, convey.ShouldEqual, 480)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_AllowedOrigins(t *testing.T) {
	convey.Convey("Given a comma separated origin list", t, func() {
		cfg := config.New()
		cfg.CORSAllowedOrigins = " https://a.example , ,https://b.example"

		convey.So(cfg.AllowedOrigins(), convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
	})

	convey.Convey("Given the default origin list", t, func() {
		convey.So(config.New().AllowedOrigins(), convey.ShouldResemble, []string{"*"})
	})
}

func TestNormalizeAPIPrefix(t *testing.T) {
	convey.Convey("NormalizeAPIPrefix drops trailing slashes", t, func() {
		convey.So(config.NormalizeAPIPrefix("/api/"), convey.ShouldEqual, "/api")
		convey.So(config.NormalizeAPIPrefix(" /v1/api// "), convey.ShouldEqual, "/v1/api")
		convey.So(config.NormalizeAPIPrefix("/"), convey.ShouldEqual, "")
	})
}

func TestMillis(t *testing.T) {
	convey.Convey("Millis converts milliseconds to a duration", t, func() {
		convey.So(config.Millis(1500), convey.ShouldEqual, 1500*time.Millisecond)
		convey.So(config.Millis(0), convey.ShouldEqual, time.Duration(0))
	})
}
