// ABOUTME: Server orchestrator that wires the registry, tenant stores and HTTP API
// ABOUTME: Manages the HTTP listener lifecycle and releases stores on shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/2389/tower-gateway/internal/api"
	"github.com/2389/tower-gateway/internal/auth"
	"github.com/2389/tower-gateway/internal/config"
	"github.com/2389/tower-gateway/internal/identity"
	"github.com/2389/tower-gateway/internal/metrics"
	"github.com/2389/tower-gateway/internal/records"
	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/store"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// Server owns every long-lived component of a running tower-gateway.
type Server struct {
	config     *config.Config
	registry   *store.SQLiteStore
	tenants    *tenantdb.Manager
	identity   *identity.Service
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore opens the central registry.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing registry: %w", err)
	}
	return s, nil
}

// initTenants creates the tenant store manager from config.
func initTenants(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*tenantdb.Manager, error) {
	mgr, err := tenantdb.New(tenantdb.Options{
		Root:         cfg.Tenants.Root,
		Driver:       cfg.Tenants.Driver,
		BusyTimeout:  cfg.Tenants.BusyTimeout,
		MaxRetries:   cfg.Tenants.MaxRetries,
		RetryBackoff: cfg.Tenants.RetryBackoff,
		PoolSize:     cfg.Tenants.PoolSize,
		IdleTimeout:  cfg.Tenants.IdleTimeout,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tenant stores: %w", err)
	}
	return mgr, nil
}

// New creates a Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	tenants, err := initTenants(cfg, m, logger)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		registry: registry,
		tenants:  tenants,
		metrics:  m,
		logger:   logger.With("component", "server"),
	}

	s.identity = identity.New(registry, tenants, identity.WithLogger(logger))
	binder := session.NewBinder(registry, tenants, logger)

	handler := api.New(api.Deps{
		Identity: s.identity,
		Records:  records.New(tenants, logger),
		Binder:   binder,
		Tokens:   auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		TokenTTL: cfg.Auth.TokenTTL,
		Metrics:  m,
		Ready:    s.ready,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	if m != nil {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Identity exposes the account service for administrative callers.
func (s *Server) Identity() *identity.Service {
	return s.identity
}

// ready reports whether the registry answers and the tenant root is present.
func (s *Server) ready(ctx context.Context) error {
	if err := s.registry.Ping(ctx); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	info, err := os.Stat(s.tenants.Root())
	if err != nil {
		return fmt.Errorf("tenant root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("tenant root %s is not a directory", s.tenants.Root())
	}
	return nil
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = s.gracefulShutdown()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context, since the run
// context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes every store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var result *multierror.Error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("HTTP server: %w", err))
	}
	if err := s.tenants.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("tenant stores: %w", err))
	}
	if err := s.registry.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("registry: %w", err))
	}
	return result.ErrorOrNil()
}
