// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"speakersentiment/internal/config"
	"speakersentiment/internal/pipeline"
	"speakersentiment/internal/store"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Configuration
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(p *pipeline.Pipeline, analyses store.Repository, cfg *config.Configuration, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handler:    NewHandler(p, analyses, cfg, logger),
		middleware: NewMiddleware(logger),
		config:     cfg,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.GetCORSAllowedOrigins()))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)

		router.Route("/analyses", func(router chi.Router) {
			router.Get("/", r.handler.ListAnalyses)
			router.Post("/", r.handler.CreateAudioAnalysis)
			router.Post("/transcript", r.handler.CreateTranscriptAnalysis)

			router.Route("/{id}", func(router chi.Router) {
				router.Get("/", r.handler.GetAnalysis)
				router.Delete("/", r.handler.DeleteAnalysis)
				router.Get("/csv", r.handler.GetAnalysisCSV)
				router.Get("/chart.svg", r.handler.GetAnalysisChart)
			})
		})
	})

	return router
}
