// Package web serves the catalog over HTTP: the JSON action API, the dataset
// pages, and plugin routes and assets.
package web

import (
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spatial-catalog/internal/catalog"
	"github.com/sells-group/spatial-catalog/internal/config"
	"github.com/sells-group/spatial-catalog/internal/plugin"
)

// Options configures a Server.
type Options struct {
	Config   *config.Config
	Service  *catalog.Service
	Registry *plugin.Registry

	// Assets maps entries of the extra template and public path lists to
	// embedded file systems. Paths without an entry are read from disk.
	Assets map[string]fs.FS
}

// Server is the catalog HTTP front end.
type Server struct {
	cfg     *config.Config
	svc     *catalog.Service
	reg     *plugin.Registry
	pages   *pageSet
	public  []fs.FS
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Server, loading page templates and public directories.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Service == nil || opts.Registry == nil {
		return nil, eris.New("web: config, service and registry are required")
	}
	log := zap.L().With(zap.String("component", "web"))

	templates := resolvePaths(opts.Config.Server.ExtraTemplatePaths, opts.Assets, log)
	pages, err := loadPages(templates)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if rps := opts.Config.Server.SearchRPS; rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := opts.Config.Server.SearchBurst
	if burst < 1 {
		burst = 1
	}

	return &Server{
		cfg:     opts.Config,
		svc:     opts.Service,
		reg:     opts.Registry,
		pages:   pages,
		public:  resolvePaths(opts.Config.Server.ExtraPublicPaths, opts.Assets, log),
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}, nil
}

// Handler builds the router. Plugin routes are registered once per call.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/3/action", func(r chi.Router) {
		r.Post("/package_create", s.handleCreate)
		r.Post("/package_update", s.handleUpdate)
		r.Post("/package_delete", s.handleDelete)
		r.Get("/package_show", s.handleShow)
		r.With(s.rateLimit).Get("/package_search", s.handleSearch)
		r.With(s.rateLimit).Post("/package_search", s.handleSearch)
	})

	r.Route("/dataset", func(r chi.Router) {
		r.With(s.rateLimit).Get("/", s.pageSearch)
		r.Get("/new", s.pageNew)
		r.Post("/new", s.pageNew)
		r.Get("/edit/{id}", s.pageEdit)
		r.Post("/edit/{id}", s.pageEdit)
		r.Get("/{id}", s.pageRead)
	})

	s.reg.BeforeMap(r)

	r.NotFound(s.serveStatic)
	return r
}

// resolvePaths turns a comma separated path list into file systems,
// preferring registered assets and skipping directories that do not exist.
func resolvePaths(list string, assets map[string]fs.FS, log *zap.Logger) []fs.FS {
	var out []fs.FS
	for _, p := range config.SplitPaths(list) {
		if fsys, ok := assets[p]; ok {
			out = append(out, fsys)
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			log.Warn("skipping missing asset directory", zap.String("path", p))
			continue
		}
		out = append(out, os.DirFS(p))
	}
	return out
}
