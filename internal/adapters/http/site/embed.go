package site

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/okian/unitry/internal/domain/basepath"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "prototype", "demo"}

// StaticFS returns an http.FileSystem for the embedded CSS and JS.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

func parsePages(prefix basepath.Prefixer) (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"url": prefix.URL,
		"inc": func(i int) int { return i + 1 },
	}
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/panels.html")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplate, name, err)
		}
		pages[name] = t
	}
	return pages, nil
}
