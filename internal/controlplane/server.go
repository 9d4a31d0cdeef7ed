// Package controlplane serves the local HTTP API of the sync daemon: status,
// manual sync, the event log and ledger maintenance.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/dirsync/internal/controlplane/handlers"
)

type Config struct {
	Addr      string
	AuthToken string
	// RateLimit uses the limiter notation, e.g. "10-S". Empty uses
	// DefaultRateLimit.
	RateLimit string
}

const DefaultRateLimit = "10-S"

type Server struct {
	config *Config
	server *http.Server
}

func New(config *Config, syncer handlers.Syncer) (*Server, error) {
	routes, err := SetupRoutes(syncer, &RouteConfig{
		AuthToken: config.AuthToken,
		RateLimit: config.RateLimit,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		config: config,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           routes,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}, nil
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("control plane listen: %w", err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	slog.Info("control plane start", "addr", fmt.Sprintf("http://%s", ln.Addr()), "auth", s.config.AuthToken != "")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control plane serve: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}
