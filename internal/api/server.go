// Package api provides the HTTP API for the PokePI catalog: huma operations
// on a chi router, the response envelope and the event stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	services        *Services
	sseManager      *sse.Manager
	sseHandler      *sse.Handler
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
	authRateLimiter *RateLimiter
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(services *Services, sseManager *sse.Manager, cfg config.ServerConfig, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(authMiddleware(services.Accounts))

	humaConfig := huma.DefaultConfig(serverName(cfg), "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		services:        services,
		sseManager:      sseManager,
		router:          router,
		api:             api,
		logger:          logger,
		authRateLimiter: NewRateLimiter(20, time.Minute, 10),
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger, func(r *http.Request) string {
			return getUserID(r.Context())
		})
	}

	s.registerRoutes()
	return s
}

func serverName(cfg config.ServerConfig) string {
	if cfg.Name != "" {
		return cfg.Name + " API"
	}
	return "PokePI API"
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used by tests and the OpenAPI dump.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases the server's background resources.
func (s *Server) Close() {
	s.authRateLimiter.Stop()
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerCatalogRoutes()
	s.registerFavoriteRoutes()
	s.registerStatsRoutes()
	s.registerAuthRoutes()
	s.registerNotificationRoutes()
	s.registerIntentRoutes()

	// The event stream is not a huma operation: it holds the connection open
	// and writes text/event-stream frames directly.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
