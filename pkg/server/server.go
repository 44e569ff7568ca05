// Package server exposes the controller over HTTP: a JSON status API, the
// sampled voltage history, and Prometheus metrics. Everything it serves is
// read-only; the control loop stays the only writer of charger state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/battsentry/battsentry/pkg/log"
	"github.com/battsentry/battsentry/pkg/monitor"
	"github.com/battsentry/battsentry/pkg/types"
)

// Server runs the monitor loop and fronts it with the HTTP API.
type Server struct {
	monitor monitor.Runner

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the Server with the monitor it fronts.
// It uses lflag to register command-line flags for configuration.
func Configured(m monitor.Runner) *Server {
	srv := &Server{monitor: m}

	listenAddr := lflag.String("http-listen", ":8080", "HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return gziphandler.GzipHandler(mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.monitor.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.monitor.History()
	if hist == nil {
		hist = []types.VoltageSample{}
	}
	writeJSON(w, hist)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// Run starts the HTTP server and the monitor loop, blocking until the
// context is canceled or either one fails. The HTTP side shuts down
// gracefully; the monitor restores the fail-safe relay state on its way
// out regardless of why we stop.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	monErr := make(chan error, 1)
	go func() {
		monErr <- s.monitor.Run(monCtx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		err := <-monErr
		if serr := shutdown(); serr != nil {
			return fmt.Errorf("server shutdown failed: %w", serr)
		}
		return err
	case err := <-monErr:
		if serr := shutdown(); serr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "server shutdown failed", slog.Any("error", serr))
		}
		return err
	case err := <-httpErr:
		cancel()
		<-monErr
		return fmt.Errorf("server error: %w", err)
	}
}
