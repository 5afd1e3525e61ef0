// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/jobrunner/mapcore/internal/adapters/surface"
	"github.com/jobrunner/mapcore/internal/application"
	"github.com/jobrunner/mapcore/internal/config"
)

// Deps bundles the collaborators served over HTTP.
type Deps struct {
	Session *application.Session
	Surface *surface.Surface
	Health  *application.HealthService
	Sync    *application.SyncService // optional
	Decoder RegionDecoder
	// Instrument wraps every route, e.g. with request metrics. Optional.
	Instrument mux.MiddlewareFunc
	Logger     *slog.Logger
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server      *http.Server
	router      *mux.Router
	session     *application.Session
	surface     *surface.Surface
	health      *application.HealthService
	syncService *application.SyncService
	decoder     RegionDecoder
	instrument  mux.MiddlewareFunc
	limiter     *rate.Limiter
	logger      *slog.Logger
	config      config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, d Deps) *Server {
	s := &Server{
		session:     d.Session,
		surface:     d.Surface,
		health:      d.Health,
		syncService: d.Sync,
		decoder:     d.Decoder,
		instrument:  d.Instrument,
		logger:      d.Logger,
		config:      cfg,
	}
	if s.decoder == nil {
		s.decoder = GeoJSONDecoder{}
	}
	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.Rate), cfg.RateLimit.Burst)
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.instrument != nil {
		r.Use(s.instrument)
	}
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	// Layer store
	api.HandleFunc("/layers", s.handleListLayers).Methods(http.MethodGet)
	api.HandleFunc("/layers", s.handleAddLayer).Methods(http.MethodPost)
	api.HandleFunc("/layers/order", s.handleReorderLayers).Methods(http.MethodPut)
	api.HandleFunc("/layers/{name}", s.handleGetLayer).Methods(http.MethodGet)
	api.HandleFunc("/layers/{name}", s.handleUpdateLayer).Methods(http.MethodPatch)
	api.HandleFunc("/layers/{name}", s.handleRemoveLayer).Methods(http.MethodDelete)
	api.HandleFunc("/layers/{name}/statistics", s.handleLayerStatistics).Methods(http.MethodGet)

	// Regions of interest
	api.HandleFunc("/regions", s.handleListRegions).Methods(http.MethodGet)
	api.HandleFunc("/regions", s.handleImportRegions).Methods(http.MethodPost)
	api.HandleFunc("/regions.geojson", s.handleExportRegions).Methods(http.MethodGet)
	api.HandleFunc("/regions/{name}", s.handleGetRegion).Methods(http.MethodGet)
	api.HandleFunc("/regions/{name}", s.handleRemoveLayer).Methods(http.MethodDelete)

	// Region drawing lifecycle
	api.HandleFunc("/roi/open", s.handleOpenRegionDrawing).Methods(http.MethodPost)
	api.HandleFunc("/roi/finalize", s.handleFinalizeRegion).Methods(http.MethodPost)
	api.HandleFunc("/roi/cancel", s.handleCancelRegion).Methods(http.MethodPost)
	api.HandleFunc("/roi/close", s.handleCloseRegionPanel).Methods(http.MethodPost)

	// Gestures
	api.HandleFunc("/mode", s.handleSetMode).Methods(http.MethodPut)
	api.HandleFunc("/draw-complete", s.handleDrawComplete).Methods(http.MethodPost)
	api.HandleFunc("/click", s.handleClick).Methods(http.MethodPost)
	api.HandleFunc("/zoom", s.handleZoom).Methods(http.MethodPost)

	// Drawn query features and charts
	api.HandleFunc("/features", s.handleListFeatures).Methods(http.MethodGet)
	api.HandleFunc("/features/{uid:[0-9]+}", s.handleRemoveFeature).Methods(http.MethodDelete)
	api.HandleFunc("/features/{uid:[0-9]+}/select", s.handleSelectFeature).Methods(http.MethodPost)
	api.HandleFunc("/charts", s.handleListCharts).Methods(http.MethodGet)
	api.HandleFunc("/charts/{functionType}", s.handleGetChart).Methods(http.MethodGet)

	// Surface journal replay
	if s.surface != nil {
		api.HandleFunc("/surface/ops", s.handleSurfaceOps).Methods(http.MethodGet)
		api.HandleFunc("/surface/snapshot", s.handleSurfaceSnapshot).Methods(http.MethodGet)
	}

	// Sync endpoint (only if sync service is configured)
	if s.syncService != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	// OpenAPI spec and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleSwaggerUI).Methods(http.MethodGet)

	// Browser map client
	if s.config.FrontendEnabled {
		r.HandleFunc("/", s.handleFrontend).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects requests above the configured rate. The
// event stream is exempt.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind the middleware flush.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
