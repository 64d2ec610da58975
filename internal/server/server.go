// Package server exposes the quote engine over a JSON REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/tarif/internal/quote"
	"github.com/tournevent/tarif/internal/telemetry"
	"github.com/tournevent/tarif/pkg/tariff"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Engine is the part of the quote service the API uses.
type Engine interface {
	ResolvePrice(ctx context.Context, dest tariff.Destination, req tariff.ShipmentRequest) (*tariff.PriceBreakdown, error)
	SearchCommune(ctx context.Context, term string) ([]tariff.CommuneMatch, error)
	Provinces(ctx context.Context) ([]tariff.Province, tariff.DataSource, error)
	ForceReload(ctx context.Context) (quote.ModeReport, error)
	Mode() quote.ModeReport
}

// Config holds server configuration.
type Config struct {
	Port int
	// RequestTimeout bounds each request, including time queued behind
	// provider rate limits.
	RequestTimeout time.Duration
	// RatePerSecond and Burst throttle each client. Zero RatePerSecond disables throttling.
	RatePerSecond      float64
	Burst              int
	TrustXForwardedFor bool
}

// Server is the HTTP server for the quote engine.
type Server struct {
	cfg      Config
	engine   Engine
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	limiters *clientLimiters
}

// New creates a new server instance. metrics may be nil.
func New(cfg Config, engine Engine, metrics *telemetry.Metrics, logger *otelzap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		logger:  logger,
		metrics: metrics,
	}
	if cfg.RatePerSecond > 0 {
		s.limiters = newClientLimiters(cfg.RatePerSecond, cfg.Burst, 15*time.Minute)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.limiters != nil {
			r.Use(throttle(s.limiters, clientKey(s.cfg.TrustXForwardedFor)))
		}
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Post("/quotes", s.handleQuote)
		r.Get("/communes", s.handleSearchCommunes)
		r.Get("/provinces", s.handleProvinces)
		r.Post("/reload", s.handleReload)
		r.Get("/mode", s.handleMode)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
	}

	if s.limiters != nil {
		s.limiters.StartJanitor(ctx, 2*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordRequest(route, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
