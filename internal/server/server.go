package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-critters/internal/api"
	"github.com/joeblew999/plat-critters/internal/api/editor"
	"github.com/joeblew999/plat-critters/internal/config"
	"github.com/joeblew999/plat-critters/internal/db"
	"github.com/joeblew999/plat-critters/internal/humastar"
	"github.com/joeblew999/plat-critters/internal/observability"
	"github.com/joeblew999/plat-critters/internal/service"
	"github.com/joeblew999/plat-critters/internal/store"
	"github.com/joeblew999/plat-critters/internal/templates"
	"github.com/joeblew999/plat-critters/web"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string // Serve web/ from disk instead of the embedded copy
	Store      string // memory or duckdb
	ConfigPath string // Layer/template YAML; empty uses the defaults
	SessionTTL time.Duration
	Logger     zerolog.Logger
}

// Server is the critters HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	bus      *service.EventBus
	features *service.FeatureService
	sessions *editor.Sessions
	links    *humastar.Links
	logger   zerolog.Logger
}

// New creates a new critters server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	layerCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, layerCfg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	links := humastar.NewLinks("/health")

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-critters API", "1.0.0")
	humaConfig.Info.Description = "Wildlife sighting feature service and map editor."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = nil
	humaConfig.Transformers = append([]huma.Transformer{links.Transformer()}, humaConfig.Transformers...)
	humaAPI := humago.New(mux, humaConfig)

	bus := service.NewEventBus()
	features := service.NewFeatureService(st, bus, layerCfg, cfg.Logger)

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		bus:      bus,
		features: features,
		sessions: editor.NewSessions(features, cfg.SessionTTL, cfg.Logger),
		links:    links,
		logger:   cfg.Logger.With().Str("component", "server").Logger(),
	}
	if err := s.routes(); err != nil {
		features.Close()
		return nil, err
	}
	s.handler = observability.RequestLogger(cfg.Logger, mux)
	return s, nil
}

func openStore(ctx context.Context, cfg Config, layerCfg config.Config) (service.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return store.NewMemoryStore(cfg.DataDir), nil
	case "duckdb":
		conn, err := db.Open(ctx, db.Config{DataDir: cfg.DataDir, DBName: "critters"})
		if err != nil {
			return nil, err
		}
		st, err := store.NewDuckStore(ctx, conn, layerCfg.Layer.TimeField)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store %q (want memory or duckdb)", cfg.Store)
}

// webFS returns the web assets, from disk when WebDir is set.
func (s *Server) webFS() fs.FS {
	if s.config.WebDir != "" {
		return os.DirFS(s.config.WebDir)
	}
	return web.FS
}

func (s *Server) routes() error {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	storeName := s.config.Store
	if storeName == "" {
		storeName = "memory"
	}
	api.RegisterRoutes(s.humaAPI, &api.Services{Features: s.features},
		api.NewInfoHandler(s.config.DataDir, storeName, s.features.Config().Layer.ID))

	// Register Editor SSE routes using Huma + Datastar SDK
	webFS := s.webFS()
	renderer, err := templates.New(webFS, templates.FragmentsGlob, templates.PagesGlob)
	if err != nil {
		return err
	}
	editorHandler, err := editor.NewHandler(s.sessions, renderer)
	if err != nil {
		return err
	}
	editorHandler.RegisterRoutes(s.humaAPI)
	s.links.Build(s.humaAPI)

	page, err := editor.NewPage(s.humaAPI, editorHandler, s.logger)
	if err != nil {
		return err
	}

	static, err := fs.Sub(webFS, "static")
	if err != nil {
		return err
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.Handle("GET /editor", page)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	return nil
}

// Run drives the background work (view refresh on edits, session expiry)
// until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, s.bus)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Features returns the feature service (used by the seed and export
// commands).
func (s *Server) Features() *service.FeatureService {
	return s.features
}

// Close closes server resources.
func (s *Server) Close() error {
	return s.features.Close()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	for _, l := range s.links.Root() {
		w.Header().Add("Link", l)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-critters",
		"status":  "running",
		"editor":  "/editor",
	})
}
