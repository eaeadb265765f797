// Package server exposes the engine over HTTP/JSON: state-changing
// operations under POST /v1, account and pricing queries under GET /v1,
// plus the standard /healthz, /readyz and /metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"StableVault/internal/engine"
	"StableVault/internal/observability"
	"StableVault/internal/persistence"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the HTTP front of the vault.
type Server struct {
	engine  *engine.Engine
	ops     *persistence.OperationWriter // nil when running without Postgres
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
	http    *http.Server
}

type Config struct {
	Addr       string
	Engine     *engine.Engine
	Operations *persistence.OperationWriter
	Health     *observability.HealthChecker
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		engine:  cfg.Engine,
		ops:     cfg.Operations,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(s.instrument)

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.LivenessHandler)
		r.Get("/readyz", cfg.Health.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/collateral/deposit", s.handleDeposit)
		r.Post("/collateral/redeem", s.handleRedeem)
		r.Post("/collateral/deposit-and-mint", s.handleDepositAndMint)
		r.Post("/collateral/redeem-for-stable", s.handleRedeemForStable)
		r.Post("/stable/mint", s.handleMint)
		r.Post("/stable/burn", s.handleBurn)
		r.Post("/liquidate", s.handleLiquidate)

		r.Get("/accounts/{user}", s.handleAccount)
		r.Get("/accounts/{user}/health", s.handleHealthFactor)
		r.Get("/accounts/{user}/collateral/{asset}", s.handleCollateralBalance)
		r.Get("/accounts/{user}/operations", s.handleOperations)
		r.Get("/assets", s.handleAssets)
		r.Get("/assets/{asset}/usd-value", s.handleUsdValue)
		r.Get("/assets/{asset}/token-amount", s.handleTokenAmount)
		r.Get("/params", s.handleParams)
	})

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, http.StatusText(sw.status)).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
