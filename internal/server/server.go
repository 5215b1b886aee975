package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marcogenualdo/qf-auth/internal/auth"
	"github.com/marcogenualdo/qf-auth/internal/cache"
	"github.com/marcogenualdo/qf-auth/internal/config"
	"github.com/marcogenualdo/qf-auth/internal/handlers"
	"github.com/marcogenualdo/qf-auth/internal/metrics"
	"github.com/marcogenualdo/qf-auth/internal/middleware"
)

// AuthorizationServer is implemented by oidc.Provider.
type AuthorizationServer interface {
	handlers.AuthURLBuilder
	handlers.CodeExchanger
	auth.TokenRefresher
}

type Server struct {
	cfg         config.Config
	cache       cache.Cache
	provider    AuthorizationServer
	metrics     metrics.Recorder
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	rateLimiter *middleware.RateLimiter
	httpServer  *http.Server
}

func New(cfg config.Config, cache cache.Cache, provider AuthorizationServer, recorder metrics.Recorder, gatherer prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &Server{
		cfg:      cfg,
		cache:    cache,
		provider: provider,
		metrics:  recorder,
		gatherer: gatherer,
		logger:   logger,
	}, nil
}

func (s *Server) Start() error {
	router, err := s.Handler()
	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"host", s.cfg.Server.Host,
			"port", s.cfg.Server.Port,
			"base_url", s.cfg.Server.BaseURL,
			"qf_env", s.cfg.OAuth.Env,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig)
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.cache.Close(); err != nil {
		s.logger.Error("error closing cache", "error", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}
