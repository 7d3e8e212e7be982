// Package site renders the demo pages and serves their static files.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/okian/unitry/internal/adapters/http/api"
	service "github.com/okian/unitry/internal/app"
	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/pkg/logger"
)

// Error constants
var (
	ErrTemplate = errors.New("page template failed")
	ErrRender   = errors.New("page render failed")
)

// Dependencies are the service views the pages render.
type Dependencies interface {
	Catalog(ctx context.Context, g catalog.Gender) (service.CatalogView, error)
	CurrentUpload(ctx context.Context, session string) (service.UploadView, bool)
	Prefixer() basepath.Prefixer
	APIPrefix() string
	MaxUploadBytes() int64
}

// Option configures a Site.
type Option func(*Site)

// WithAssets serves fsys under /assets/.
func WithAssets(fsys fs.FS) Option {
	return func(s *Site) {
		if fsys != nil {
			s.assets = fsys
		}
	}
}

// WithLogger sets the logger used for render failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Site) {
		if l != nil {
			s.logger = l
		}
	}
}

// Site serves the home, prototype and demo pages.
type Site struct {
	deps   Dependencies
	assets fs.FS
	logger logger.Logger
	pages  map[string]*template.Template
}

// New parses the embedded templates. It fails only when they are malformed.
func New(deps Dependencies, opts ...Option) (*Site, error) {
	s := &Site{deps: deps, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	pages, err := parsePages(deps.Prefixer())
	if err != nil {
		return nil, err
	}
	s.pages = pages
	return s, nil
}

// Register attaches the page, static and asset routes to mux.
func (s *Site) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /{$}", gzhttp.GzipHandler(http.HandlerFunc(s.HandleHome)))
	mux.Handle("GET /prototype", gzhttp.GzipHandler(http.HandlerFunc(s.HandlePrototype)))
	mux.Handle("GET /demo", gzhttp.GzipHandler(http.HandlerFunc(s.HandleDemo)))
	mux.Handle("GET /static/", gzhttp.GzipHandler(http.StripPrefix("/static/", http.FileServer(StaticFS()))))
	if s.assets != nil {
		mux.Handle("GET /assets/", gzhttp.GzipHandler(http.StripPrefix("/assets/", http.FileServer(http.FS(s.assets)))))
	}
}

type feature struct {
	Title       string
	Description string
}

var features = []feature{
	{"多模态换装", "结合商品图、人体姿态与用户提示，生成更贴合的穿搭效果。"},
	{"多端部署", "Go 服务单文件部署，页面与 API 同源，可嵌入 Web、移动端与桌面客户端。"},
	{"工作流可扩展", "可串联素材筛选、批量生成、A/B 测试等环节，满足商业化需求。"},
}

var roadmap = []feature{
	{"Step 1 · 素材上传", "上传模特照与服装单品，系统自动校验角度、清晰度与人体关键点。"},
	{"Step 2 · Diffusion 推理", "调用推理服务加载定制 diffusion checkpoint，完成智能换装。"},
	{"Step 3 · 审核与分发", "通过前端审核管控后推送至商城、社媒或移动 App。"},
}

type pageData struct {
	Title  string
	Path   string
	API    string
	Gender catalog.Gender

	Features []feature
	Roadmap  []feature

	Catalog      *service.CatalogView
	Placeholders []string
	Upload       *service.UploadView
	MaxUpload    int64
}

func (s *Site) data(title, path string) pageData {
	return pageData{
		Title:     title,
		Path:      path,
		API:       s.deps.Prefixer().URL(s.deps.APIPrefix()),
		MaxUpload: s.deps.MaxUploadBytes(),
	}
}

// HandleHome handles GET / requests.
func (s *Site) HandleHome(w http.ResponseWriter, r *http.Request) {
	d := s.data("UniTry | 智能换衣体验", "/")
	d.Features = features
	d.Roadmap = roadmap
	s.render(w, r, "home", d)
}

// HandlePrototype handles GET /prototype. The gender comes from ?gender=,
// then from the classification of the visitor's last upload; without one
// the panels show placeholders.
func (s *Site) HandlePrototype(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := s.data("UniTry | 实时试穿预览", "/prototype")

	if up, ok := s.deps.CurrentUpload(ctx, api.SessionID(r)); ok {
		d.Upload = &up
		d.Gender = up.Classification.Gender
	}
	if g, err := catalog.ParseGender(r.URL.Query().Get("gender")); err == nil {
		d.Gender = g
	}
	s.withCatalog(ctx, &d)
	s.render(w, r, "prototype", d)
}

// HandleDemo handles GET /demo with a ?gender= toggle defaulting to man.
func (s *Site) HandleDemo(w http.ResponseWriter, r *http.Request) {
	d := s.data("UniTry | 样例展示", "/demo")
	d.Gender = catalog.Man
	if g, err := catalog.ParseGender(r.URL.Query().Get("gender")); err == nil {
		d.Gender = g
	}
	s.withCatalog(r.Context(), &d)
	s.render(w, r, "demo", d)
}

func (s *Site) withCatalog(ctx context.Context, d *pageData) {
	if d.Gender == "" {
		d.Placeholders = catalog.PlaceholderSlots()
		return
	}
	view, err := s.deps.Catalog(ctx, d.Gender)
	if err != nil {
		s.logger.Warn(ctx, "catalog view failed", logger.String("gender", string(d.Gender)), logger.Error(err))
		d.Gender = ""
		d.Placeholders = catalog.PlaceholderSlots()
		return
	}
	d.Catalog = &view
}

func (s *Site) render(w http.ResponseWriter, r *http.Request, page string, d pageData) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", d); err != nil {
		s.logger.Error(r.Context(), "render page", logger.String("page", page), logger.Error(fmt.Errorf("%w: %v", ErrRender, err)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
