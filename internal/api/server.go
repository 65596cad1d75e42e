package api

import (
	"context"
	"net/http"

	"github.com/dgallion1/treegest/internal/config"
	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/pipeline"
	"github.com/dgallion1/treegest/internal/render"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Renderer is the part of render.Service the handlers use.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
	RenderTree(ctx context.Context, tree *element.Tree, params render.Params) (*render.Result, error)
	RenderBatch(ctx context.Context, reqs []render.Request) []render.BatchItem
	Stats() render.Stats
}

// CaptureQueue accepts capture jobs and reports on them.
type CaptureQueue interface {
	Submit(job *pipeline.Job) error
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

// Server is the HTTP API server for treegest.
type Server struct {
	router   chi.Router
	renderer Renderer
	captures CaptureQueue
	log      *zap.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. captures may be nil, in
// which case the capture endpoints answer 503.
func NewServer(renderer Renderer, captures CaptureQueue, log *zap.Logger, cfg config.Config) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		renderer: renderer,
		captures: captures,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/render", s.handleRender)
		r.Post("/api/render/snapshot", s.handleRenderSnapshot)
		r.Post("/api/render/batch", s.handleRenderBatch)

		r.Post("/api/capture", s.handleCapture)
		r.Get("/api/capture/{jobID}", s.handleCaptureStatus)

		r.Get("/api/stats/render", s.handleRenderStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
