package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeLiblib answers the generation endpoints with a finished run whose
// single image is served by the same server.
func fakeLiblib() *httptest.Server {
	mux := http.NewServeMux()
	var srv *httptest.Server
	envelope := func(w http.ResponseWriter, data any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "", "data": data})
	}
	mux.HandleFunc("/api/generate/webui/text2img/ultra", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, map[string]any{"generateUuid": "gen-1"})
	})
	mux.HandleFunc("/api/generate/webui/status", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, map[string]any{
			"generateUuid":   "gen-1",
			"generateStatus": 5,
			"images":         []map[string]any{{"imageUrl": srv.URL + "/files/out.png"}},
		})
	})
	mux.HandleFunc("/api/model/version/get", func(w http.ResponseWriter, _ *http.Request) {
		envelope(w, map[string]any{"version_uuid": "v1", "model_name": "checkpoint"})
	})
	mux.HandleFunc("/files/out.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv = httptest.NewServer(mux)
	return srv
}

func execute(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLiblibCommands(t *testing.T) {
	Convey("Given a fake LiblibAI server", t, func() {
		srv := fakeLiblib()
		defer srv.Close()
		t.Setenv("UNITRY_LIBLIB_BASE_URL", srv.URL)
		t.Setenv("UNITRY_LIBLIB_ACCESS_KEY", "ak")
		t.Setenv("UNITRY_LIBLIB_SECRET_KEY", "sk")
		t.Setenv("UNITRY_LIBLIB_POLL_INTERVAL_MS", "10")

		Convey("When text2image runs to completion", func() {
			dest := filepath.Join(t.TempDir(), "out", "look.png")
			out, err := execute("liblib", "text2image", "--prompt", "a model", "--out", dest)

			So(err, ShouldBeNil)
			var res generationOutput
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res.GenerateUUID, ShouldEqual, "gen-1")
			So(res.Files, ShouldResemble, []string{dest})

			data, err := os.ReadFile(dest)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "png-bytes")
		})

		Convey("When text2image does not wait", func() {
			out, err := execute("liblib", "text2image", "-p", "a model", "--no-wait")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"generate_uuid": "gen-1"`)
			So(out, ShouldNotContainSubstring, "status")
		})

		Convey("When a model version is checked", func() {
			out, err := execute("liblib", "check", "v1")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"model_name": "checkpoint"`)
		})

		Convey("When the prompt flag is missing", func() {
			_, err := execute("liblib", "text2image")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given no liblib keys", t, func() {
		t.Setenv("UNITRY_LIBLIB_ACCESS_KEY", "")
		t.Setenv("UNITRY_LIBLIB_SECRET_KEY", "")
		t.Setenv("ACCESS_KEY", "")
		t.Setenv("SECRET_KEY", "")

		_, err := execute("liblib", "check", "v1")
		So(errors.Is(err, errMissingKeys), ShouldBeTrue)
	})
}

func TestSmokeCommand(t *testing.T) {
	Convey("Given a server under a base path", t, func() {
		t.Setenv("UNITRY_BASE_PATH", "/unitry")
		mux := http.NewServeMux()
		mux.HandleFunc("/unitry/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		mux.HandleFunc("/unitry/api/catalog/woman", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When one route fails", func() {
			out, err := execute("smoke", "--server", srv.URL)
			So(errors.Is(err, errSmokeFailed), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "/unitry/api/catalog/woman")
			So(out, ShouldContainSubstring, `"path": "/unitry/healthz"`)
		})
	})

	Convey("Given every route answers", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
		defer srv.Close()

		results := runSmoke(context.Background(), srv.Client(), srv.URL, []string{"/healthz", "/api"})
		So(len(results), ShouldEqual, 2)
		for _, r := range results {
			So(r.OK, ShouldBeTrue)
		}
	})
}
