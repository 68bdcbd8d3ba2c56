package server

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ShutdownHandlerInterface defines the interface for handling graceful shutdown
type ShutdownHandlerInterface interface {
	// HandleShutdown orchestrates the shutdown process
	// Returns an error if shutdown encounters an issue
	HandleShutdown(serverDone chan error, osSignals chan os.Signal) error

	// ShutdownServer initiates server shutdown
	ShutdownServer()
}

// ShutdownHandler implements the ShutdownHandlerInterface
type ShutdownHandler struct {
	server *Server
}

// NewShutdownHandler creates a new shutdown handler
func NewShutdownHandler(server *Server) ShutdownHandlerInterface {
	return &ShutdownHandler{
		server: server,
	}
}

// HandleShutdown orchestrates graceful shutdown based on shutdown sources
func (h *ShutdownHandler) HandleShutdown(serverDone chan error, osSignals chan os.Signal) error {
	// Wait for one of two shutdown triggers:
	// 1. Server error/completion (serverDone)
	// 2. OS signal (SIGTERM/SIGINT from Kubernetes or user)
	select {
	case err := <-serverDone:
		// Server stopped (error or normal completion)
		slog.Info("Server stopped, initiating shutdown")
		close(osSignals) // Signal OS goroutine to stop if it's listening
		h.ShutdownServer()
		return err

	case sig, ok := <-osSignals:
		// OS signal received (SIGTERM from Kubernetes or user)
		if !ok {
			return nil
		}
		slog.Info("Received OS signal, initiating shutdown", "signal", sig)
		h.ShutdownServer()

		// Wait for server to finish
		return <-serverDone
	}
}

// ShutdownServer stops the sweep loop, drains the HTTP server and closes
// the external connections.
func (h *ShutdownHandler) ShutdownServer() {
	if h.server.sweeper != nil {
		h.server.sweeper.Stop()
	}

	if h.server.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.server.http.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown failed", "error", err.Error())
		}
	}

	if h.server.publisher != nil {
		h.server.publisher.Close()
	}
	if h.server.database != nil {
		if err := h.server.database.Close(); err != nil {
			slog.Error("Database close failed", "error", err.Error())
		}
	}

	slog.Info("Shutdown complete")
}
