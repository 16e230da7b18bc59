// Package server provides the HTTP surface: routing, middleware, and the
// JSON error envelope.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/database"
	"github.com/pricelens/pricelens/internal/events"
	"github.com/pricelens/pricelens/internal/modules/deals"
	"github.com/pricelens/pricelens/internal/modules/pricing"
	"github.com/pricelens/pricelens/internal/modules/products"
	"github.com/pricelens/pricelens/internal/modules/queries"
	"github.com/pricelens/pricelens/internal/monitoring"
)

// Route rate limits, requests per minute per client.
const (
	limitQuery     = 10
	limitAdvanced  = 5
	limitCompare   = 20
	limitDeals     = 30
	limitCampaigns = 30
)

// Config carries everything the server needs.
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	RateDefault int // requests per minute for routes without a dedicated limit
	CatalogDB   *database.DB
	KVDB        *database.DB
	Cache       *cache.Manager
	Queries     *queries.Service
	Comparison  *products.ComparisonService
	Trends      *products.TrendService
	Deals       *deals.Service
	Engine      *pricing.Engine
	Monitors    *monitoring.Collector
	APIMonitor  *monitoring.APIUsageMonitor
	Broadcaster *events.Broadcaster
}

// Server is the HTTP server.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	rateDefault int
	rateLimits  []routeLimit

	catalogDB   *database.DB
	kvDB        *database.DB
	cache       *cache.Manager
	queries     *queries.Service
	comparison  *products.ComparisonService
	trends      *products.TrendService
	deals       *deals.Service
	engine      *pricing.Engine
	monitors    *monitoring.Collector
	apiMonitor  *monitoring.APIUsageMonitor
	broadcaster *events.Broadcaster
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	rateDefault := cfg.RateDefault
	if rateDefault <= 0 {
		rateDefault = 60
	}

	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		rateDefault: rateDefault,
		catalogDB:   cfg.CatalogDB,
		kvDB:        cfg.KVDB,
		cache:       cfg.Cache,
		queries:     cfg.Queries,
		comparison:  cfg.Comparison,
		trends:      cfg.Trends,
		deals:       cfg.Deals,
		engine:      cfg.Engine,
		monitors:    cfg.Monitors,
		apiMonitor:  cfg.APIMonitor,
		broadcaster: cfg.Broadcaster,
	}

	s.rateLimits = s.buildRateLimits()
	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestValidation)
	s.router.Use(securityHeaders)
	s.router.Use(s.rateLimit)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Timeout(60 * time.Second))

	allowedOrigins := []string{"https://*", "http://*"}
	if devMode {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		// Critical paths sit behind the DB health gate
		r.Group(func(r chi.Router) {
			r.Use(s.dbHealthGate)

			r.Post("/query/", s.handleQuery)
			r.Post("/query/advanced", s.handleQueryAdvanced)

			r.Get("/products/compare", s.handleCompare)
			r.Post("/products/compare", s.handleCompare)
			r.Get("/products/trend", s.handleTrend)

			r.Get("/deals/", s.handleDeals)
			r.Post("/deals/", s.handleDeals)
			r.Get("/deals/campaigns", s.handleCampaigns)
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/database/performance", s.handleDatabasePerformance)
			r.Get("/database/slow-queries", s.handleSlowQueries)
			r.Get("/cache/stats", s.handleCacheStats)
			r.Get("/metrics/summary", s.handleMetricsSummary)
			r.Get("/metrics/realtime", s.handleMetricsRealtime)
			r.Get("/alerts", s.handleAlerts)
			r.Post("/cache/invalidate/{namespace}", s.handleCacheInvalidate)
		})

		r.Get("/prices/stream", s.broadcaster.ServeHTTP)
	})
}

// Start begins serving. Blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
