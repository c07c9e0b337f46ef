package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/wldsell/service/config"
	"github.com/brojonat/wldsell/service/db"
	"github.com/brojonat/wldsell/service/metrics"
	natspkg "github.com/brojonat/wldsell/service/nats"
	"github.com/brojonat/wldsell/service/price"
	"github.com/brojonat/wldsell/service/temporal"
	"github.com/brojonat/wldsell/service/worldapp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the persistence the HTTP API needs. *db.Store implements it.
type Store interface {
	CreateReference(ctx context.Context, id string, ttl time.Duration) (*db.Reference, error)
	GetReference(ctx context.Context, id string) (*db.Reference, error)
	ConfirmReference(ctx context.Context, id, transactionID string) (*db.Reference, error)
	CreateOrder(ctx context.Context, params db.CreateOrderParams) (*db.Order, error)
	ListOrders(ctx context.Context, params db.ListOrdersParams) ([]*db.Order, error)
}

// TransactionVerifier looks up a wallet transaction. *worldapp.Verifier implements it.
type TransactionVerifier interface {
	GetTransaction(ctx context.Context, transactionID string) (*worldapp.Transaction, error)
}

// Server represents the HTTP server for the sell service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        Store
	verifier     TransactionVerifier
	prices       price.Source
	scheduler    temporal.Scheduler
	publisher    natspkg.Publisher
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// Deps groups the collaborators of a Server.
// Scheduler, Publisher, SSEPublisher and Metrics are optional.
type Deps struct {
	Store        Store
	Verifier     TransactionVerifier
	Prices       price.Source
	Scheduler    temporal.Scheduler
	Publisher    natspkg.Publisher
	SSEPublisher *SSEPublisher
	Metrics      *metrics.Metrics
}

// New creates a new HTTP server with the given dependencies.
func New(addr string, cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        deps.Store,
		verifier:     deps.Verifier,
		prices:       deps.Prices,
		scheduler:    deps.Scheduler,
		publisher:    deps.Publisher,
		ssePublisher: deps.SSEPublisher,
		metrics:      deps.Metrics,
		logger:       logger,
	}
}

// Handler builds the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Payment routes
	route("POST /api/initiate-payment", "/api/initiate-payment",
		handleInitiatePayment(s.store, s.cfg.ReferenceTTL, s.metrics, s.logger))
	route("POST /api/confirm-payment", "/api/confirm-payment",
		handleConfirmPayment(s.store, s.verifier, s.publisher, s.metrics, s.logger))

	// Order routes
	route("POST /api/orders", "/api/orders",
		handleCreateOrder(s.store, s.cfg.CommissionSchedule, s.publisher, s.metrics, s.logger))
	route("GET /api/orders", "/api/orders",
		handleListOrders(s.store, s.logger))

	// Price routes
	route("GET /api/price", "/api/price", handleGetPrice(s.prices, s.logger))
	route("GET /api/quote", "/api/quote", handleGetQuote(s.prices, s.cfg.CommissionSchedule, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		route("GET /api/stream/price", "/api/stream/price", handleStreamPrice(s.ssePublisher, s.prices, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start ensures the reference sweep schedule exists and starts the HTTP server.
func (s *Server) Start() error {
	if err := s.ensureSweepSchedule(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure sweep schedule: %w", err)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open; handlers bound their own work
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) ensureSweepSchedule(ctx context.Context) error {
	if s.scheduler == nil {
		s.logger.Warn("no scheduler configured, reference sweep will not run")
		return nil
	}

	input := temporal.SweepInput{OrphanGracePeriod: s.cfg.OrphanGracePeriod}
	if err := s.scheduler.EnsureSweepSchedule(ctx, s.cfg.SweepInterval, input); err != nil {
		return err
	}

	s.logger.Info("reference sweep scheduled",
		"interval", s.cfg.SweepInterval,
		"orphan_grace_period", s.cfg.OrphanGracePeriod,
	)
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
