package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gavi-dev/gavi"
)

// Server mounts an Application on a net/http server. Plain requests go
// through the HTTP transport, upgrade requests through the websocket
// transport, and the lifespan exchange wraps the accept loop.
type Server struct {
	app    gavi.Application
	config *Config
	logger *slog.Logger

	httpHandler *Handler
	wsHandler   *WebSocketHandler
	lifespan    *Lifespan
	httpServer  *http.Server
}

// New creates a Server for app. config may be nil for defaults.
func New(app gavi.Application, config *Config) *Server {
	config = config.withDefaults()
	return &Server{
		app:         app,
		config:      config,
		logger:      config.Logger,
		httpHandler: NewHandler(app, config),
		wsHandler:   NewWebSocketHandler(app, config),
	}
}

// ServeHTTP implements http.Handler, dispatching on the upgrade header.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsWebSocketUpgrade(r) {
		s.wsHandler.ServeHTTP(w, r)
		return
	}
	s.httpHandler.ServeHTTP(w, r)
}

// Handler returns an http.Handler for mounting in external routers.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.ServeHTTP)
}

// Run starts the server and blocks until a shutdown signal or a listener
// error. The lifespan startup exchange runs before the listener opens; a
// startup failure prevents serving entirely.
func (s *Server) Run() error {
	if !s.config.DisableLifespan {
		ls, err := NewLifespan(s.app, s.config)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.config.StartupTimeout)
		err = ls.Startup(ctx)
		cancel()
		if err != nil {
			return err
		}
		s.lifespan = ls
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server: the listener stops, in-flight
// connections drain, then the lifespan shutdown exchange runs.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.lifespan != nil {
		if err := s.lifespan.Shutdown(ctx); err != nil {
			s.logger.Error("lifespan shutdown error", "error", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}
