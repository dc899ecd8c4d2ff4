package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/immochain/immochain/internal/auth"
	"github.com/immochain/immochain/internal/marketplace"
	"github.com/immochain/immochain/internal/registry"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server is the HTTP API front end for the registry and marketplace.
type Server struct {
	cfg      Config
	reg      *registry.Registry
	mkt      *marketplace.Marketplace
	verifier *auth.Verifier
	feed     http.Handler
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a new Server. The feed handler is optional; when nil the /ws
// route is not mounted.
func New(cfg Config, reg *registry.Registry, mkt *marketplace.Marketplace, verifier *auth.Verifier, feed http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		reg:      reg,
		mkt:      mkt,
		verifier: verifier,
		feed:     feed,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the chi routing tree. Exposed separately so tests can drive
// the API through httptest without a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	// Account registration is open: the caller cannot sign before the
	// server knows its public key.
	r.Post("/accounts", s.handleRegisterAccount)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", s.handleListAssets)
		r.With(s.requireSignature).Post("/", s.handleRegisterAsset)

		r.Route("/{assetID}", func(r chi.Router) {
			r.Get("/", s.handleGetAsset)
			r.Get("/uri", s.handleGetURI)
			r.Get("/price", s.handleGetPrice)
			r.With(s.requireSignature).Put("/price", s.handleSetPrice)

			r.Get("/balances/{address}", s.handleGetBalance)
			r.With(s.requireSignature).Post("/transfers", s.handleTransfer)

			r.Get("/book", s.handleGetBook)
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", s.handleListOrders)
				r.Get("/{address}", s.handleOrdersByAddress)
				r.With(s.requireSignature).Post("/sell", s.handleCreateSellOrder)
				r.With(s.requireSignature).Delete("/sell", s.handleCancelSellOrder)
				r.With(s.requireSignature).Post("/buy", s.handleCreateBuyOrder)
			})
		})
	})

	r.With(s.requireSignature).Post("/transfers/batch", s.handleBatchTransfer)

	r.Route("/marketplace", func(r chi.Router) {
		r.Get("/funds", s.handleGetFunds)
		r.Get("/escrow/{address}", s.handleGetEscrow)
		r.With(s.requireSignature).Post("/withdrawals", s.handleWithdraw)
	})

	if s.feed != nil {
		r.Get("/ws", s.feed.ServeHTTP)
	}

	return r
}

// Start begins serving in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("http server started", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.logger.Info("http server stopped")
	return err
}
