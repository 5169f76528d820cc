package application

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/photosheet/internal/api"
	"github.com/eugenenazirov/photosheet/internal/config"
	"github.com/eugenenazirov/photosheet/internal/export"
	"github.com/eugenenazirov/photosheet/internal/layout"
	"github.com/eugenenazirov/photosheet/internal/render"
	"github.com/eugenenazirov/photosheet/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	catalog  storage.Catalog
	planner  layout.Planner
	exporter *export.Exporter
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	catalog, err := NewCatalog(cfg.Print)
	if err != nil {
		return nil, err
	}

	planner := layout.New(cfg.Print.Item(), cfg.Print.Packing())
	exporter := NewExporter(cfg.Print, logger)

	handler := api.NewHandler(planner, catalog, exporter,
		api.WithMaxPhotos(cfg.Print.MaxPhotos),
		api.WithMaxUploadBytes(cfg.Print.MaxUploadBytes()),
		api.WithDefaultPaper(cfg.Print.DefaultPaper),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler, err := BuildRootHandler(apiRouter)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		catalog:  catalog,
		planner:  planner,
		exporter: exporter,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, rootHandler),
	}, nil
}

// NewCatalog builds the paper catalog from the defaults plus configured papers
// and checks that the default paper exists.
func NewCatalog(cfg config.PrintConfig) (*storage.MemoryCatalog, error) {
	catalog := storage.NewMemoryCatalog()
	for _, p := range cfg.Papers {
		if err := catalog.SetPaper(p); err != nil {
			return nil, fmt.Errorf("failed to apply configured paper %q: %w", p.ID, err)
		}
	}
	if cfg.DefaultPaper != "" {
		if _, err := catalog.GetPaper(cfg.DefaultPaper); err != nil {
			return nil, fmt.Errorf("invalid default paper: %w", err)
		}
	}
	return catalog, nil
}

// NewExporter builds the exporter for the configured DPI and JPEG quality.
func NewExporter(cfg config.PrintConfig, logger *zap.Logger) *export.Exporter {
	renderer := render.New(cfg.Item(), cfg.Packing(), cfg.DPI)
	return export.New(renderer,
		export.WithLogger(logger),
		export.WithJPEGQuality(cfg.JPEGQuality),
	)
}

// BuildRootHandler constructs the root HTTP handler that serves static files and routes API requests.
func BuildRootHandler(apiHandler http.Handler) (http.Handler, error) {
	mux := http.NewServeMux()

	staticPath, err := resolveProjectPath(filepath.Join("web", "static"))
	if err != nil {
		return nil, err
	}
	staticDir := http.Dir(staticPath)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(staticDir)))
	mux.Handle("/api/", apiHandler)

	indexPath, err := resolveProjectPath(filepath.Join("web", "templates", "index.html"))
	if err != nil {
		return nil, err
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, indexPath)
	}))

	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
