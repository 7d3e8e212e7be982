// Package swagger serves the OpenAPI document of the try-on API and a ReDoc page.
package swagger

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/okian/unitry/internal/domain/basepath"
)

// Error constants.
var (
	ErrServe = errors.New("swagger serve failed")
)

const redocCDN = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

var indexTmpl = template.Must(template.New("redoc").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>UniTry API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container" spec-url="{{.Spec}}"></redoc>
    <script src="{{.Script}}"></script>
  </body>
</html>`))

// Register attaches the docs routes to mux.
//
//	GET /api-docs      -> ReDoc HTML
//	GET /openapi.yaml  -> embedded OpenAPI document
func Register(_ context.Context, mux *http.ServeMux, base basepath.Prefixer) {
	if mux == nil {
		panic("mux is nil")
	}

	var page bytes.Buffer
	if err := indexTmpl.Execute(&page, map[string]string{
		"Spec":   base.URL("/openapi.yaml"),
		"Script": redocCDN,
	}); err != nil {
		panic(errors.Join(ErrServe, err))
	}
	html := page.Bytes()

	mux.HandleFunc("GET /api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(html)
	})

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
