package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"scamwatch/internal/api/handlers"
	apimiddleware "scamwatch/internal/api/middleware"
	"scamwatch/internal/config"
	"scamwatch/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	logger   *logger.Logger
}

// NewRouter creates a new Router instance
func NewRouter(cfg config.Config, h *handlers.Handlers, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health checks
	router.Get("/health", r.handlers.Health.Check)
	router.Get("/ready", r.handlers.Health.Ready)

	router.Route("/api/v1", func(api chi.Router) {
		// Nightly reports
		api.Route("/reports", func(reports chi.Router) {
			reports.Get("/", r.handlers.Reports.List)
			reports.Get("/{date}", r.handlers.Reports.Get)
		})

		// Scam flags and review workflow
		api.Route("/flags", func(flags chi.Router) {
			flags.Get("/", r.handlers.Flags.ListByDay)
			flags.Get("/unreviewed", r.handlers.Flags.ListUnreviewed)
			flags.Post("/review", r.handlers.Flags.Review)
		})

		// Detection runs
		api.Post("/scan", r.handlers.Scans.Trigger)
		api.Route("/runs", func(runs chi.Router) {
			runs.Get("/latest", r.handlers.Scans.Latest)
			runs.Get("/{id}", r.handlers.Scans.Get)
		})
	})

	return router
}
