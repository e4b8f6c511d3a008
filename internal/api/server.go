// Package api provides the HTTP API server and handlers for the collection.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/events"
	"github.com/collectr/collectr/internal/http/response"
	"github.com/collectr/collectr/internal/metrics"
	"github.com/collectr/collectr/internal/ratelimit"
	"github.com/collectr/collectr/internal/table"
)

// Pinger is a remote store that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the server's ambient dependencies. Nil fields disable the
// matching endpoint or check.
type Options struct {
	Store          Pinger
	Events         *events.Manager
	Metrics        *metrics.Metrics
	WriteLimiter   *ratelimit.KeyedRateLimiter
	AllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services     *Services
	store        Pinger
	eventManager *events.Manager
	metrics      *metrics.Metrics
	writeLimiter *ratelimit.KeyedRateLimiter
	router       *chi.Mux
	api          huma.API
	logger       *slog.Logger

	inventoryTable *table.Engine[domain.InventoryView]
	productsTable  *table.Engine[domain.ProductView]
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		services:       services,
		store:          opts.Store,
		eventManager:   opts.Events,
		metrics:        opts.Metrics,
		writeLimiter:   opts.WriteLimiter,
		router:         router,
		logger:         logger,
		inventoryTable: services.InventoryTable,
		productsTable:  services.ProductsTable,
	}

	s.setupMiddleware(opts.AllowedOrigins)

	config := huma.DefaultConfig("Collectr API", "1.0.0")
	config.Transformers = append(config.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, config)
	RegisterErrorHandler()

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API the operations are registered on.
func (s *Server) API() huma.API { return s.api }

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.writeLimiter != nil {
		s.router.Use(s.limitWrites)
	}
}

func (s *Server) setupRoutes() {
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no route for "+r.URL.Path, nil)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.MethodNotAllowed(w, nil)
	})

	s.registerHealthRoutes()
	s.registerProductRoutes()
	s.registerInventoryRoutes()
	s.registerTagRoutes()
	s.registerPurchaseRoutes()
	s.registerSaleRoutes()

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
	if s.eventManager != nil {
		s.router.Get("/api/v1/events", events.NewHandler(s.eventManager, s.logger).ServeHTTP)
	}
}

// register adds an operation whose handler errors are reported with their domain
// code and status.
func register[I, O any](api huma.API, op huma.Operation, handler func(context.Context, *I) (*O, error)) {
	huma.Register(api, op, func(ctx context.Context, input *I) (*O, error) {
		out, err := handler(ctx, input)
		if err != nil {
			return nil, toAPIError(err)
		}
		return out, nil
	})
}
