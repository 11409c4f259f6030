// Package server provides the MCP server that exposes decoded vector tiles.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/vtdecode/pkg/source"
	"github.com/NERVsystems/vtdecode/pkg/tools"
	"github.com/NERVsystems/vtdecode/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "vtdecode-mcp-server"

// Server encapsulates the MCP server with the vector tile tools.
type Server struct {
	srv          *mcpserver.MCPServer
	registry     *tools.Registry
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
	mu           sync.Mutex
	once         sync.Once // Ensure we only close stopCh once
	ctxCancel    context.CancelFunc
	ctxGoroutine sync.Once // Ensure we only start one context goroutine
}

// NewServer creates a new MCP server with all tools, resources and
// prompts registered against src.
func NewServer(src *source.Source, logger *slog.Logger) (*Server, error) {
	if src == nil {
		return nil, errors.New("server: nil tile source")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing vector tile MCP server",
		"name", ServerName,
		"version", version.BuildVersion,
		"tile_url", src.Template())

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	registry := tools.NewRegistry(logger, src)
	registry.RegisterAll(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or an error occurs.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.doneCh)
		err := mcpserver.ServeStdio(s.srv)
		if err != nil && err != io.EOF {
			s.logger.Error("server error", "error", err)
		}

		// stdin closed: let Run return.
		s.Shutdown()
	}()

	<-s.stopCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	// ServeStdio only returns once stdin closes, so do not wait forever.
	select {
	case <-s.doneCh:
	case <-time.After(shutdownGrace):
		s.logger.Debug("stdio transport still reading after shutdown")
	}
	return nil
}

// shutdownGrace bounds how long Run waits for the stdio loop.
const shutdownGrace = 2 * time.Second

// RunWithContext starts the MCP server and allows for graceful shutdown via context.
// This method blocks until the context is canceled or an error occurs.
func (s *Server) RunWithContext(ctx context.Context) error {
	s.ctxGoroutine.Do(func() {
		derived, cancel := context.WithCancel(ctx)
		s.ctxCancel = cancel

		go func() {
			select {
			case <-derived.Done():
				s.Shutdown()
			case <-s.stopCh:
			}
		}()
	})

	return s.Run()
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately. A Run started after
// Shutdown returns at once.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.once.Do(func() {
		close(s.stopCh)
	})

	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until Shutdown has been called and the stdio
// loop has ended or the grace period has passed.
func (s *Server) WaitForShutdown() {
	<-s.stopCh
	select {
	case <-s.doneCh:
	case <-time.After(shutdownGrace):
	}
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Registry returns the tool registry.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}
