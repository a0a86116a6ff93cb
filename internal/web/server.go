// Package web exposes the aggregated fail2ban state and ban controls
// over a JSON API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/user/banwatch/internal/daemon"
	"github.com/user/banwatch/internal/util"
)

// Server is the web server.
type Server struct {
	d    *daemon.Daemon
	port int
	srv  *http.Server
}

// NewServer creates a new web server.
func NewServer(d *daemon.Daemon, port int) *Server {
	return &Server{
		d:    d,
		port: port,
	}
}

// Start starts the web server. It blocks until the server is shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes
	h := NewHandlers(s.d)

	mux.HandleFunc("/api/snapshot", h.APIGetSnapshot)
	mux.HandleFunc("/api/status", h.APIGetStatus)
	mux.HandleFunc("/api/jails", h.APIGetJails)
	mux.HandleFunc("/api/logs", h.APIGetLogs)
	mux.HandleFunc("/api/geo", h.APIGetGeo)
	mux.HandleFunc("/api/ban", h.APIBan)
	mux.HandleFunc("/api/unban", h.APIUnban)
	mux.HandleFunc("/api/reload", h.APIReload)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown when the daemon context ends
	go func() {
		<-s.d.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.srv.Shutdown(ctx)
	}()

	util.Info("Web server starting on port %d", s.port)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop stops the web server.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
