// Package server provides a lightweight HTTP status server that exposes
// per-channel watcher state, emote snapshots, change history, and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/watcher"
)

// WatcherFunc is a function that returns the current list of channel
// watchers. Used to dynamically fetch watcher state.
type WatcherFunc func() []*watcher.Watcher

// StatusServer serves the JSON status API and Prometheus metrics.
type StatusServer struct {
	addr string
	log  *logger.Logger
	srv  *http.Server

	mu          sync.RWMutex
	watcherFunc WatcherFunc
}

// NewStatusServer creates a new StatusServer bound to the given address.
func NewStatusServer(addr string, log *logger.Logger) *StatusServer {
	s := &StatusServer{
		addr: addr,
		log:  log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/channels", s.handleChannels)
	mux.HandleFunc("GET /api/channel/{name}", s.handleChannel)
	mux.HandleFunc("GET /api/channel/{name}/emotes", s.handleEmotes)
	mux.HandleFunc("GET /api/channel/{name}/history", s.handleHistory)
	mux.HandleFunc("POST /api/channel/{name}/reset-backoff", s.handleResetBackoff)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.Handle("GET /metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           withLogging(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return s
}

// SetWatcherFunc sets a function that dynamically returns all channel
// watchers. Thread-safe.
func (s *StatusServer) SetWatcherFunc(fn WatcherFunc) {
	s.mu.Lock()
	s.watcherFunc = fn
	s.mu.Unlock()
}

// getWatchers returns the current watcher list. Thread-safe.
func (s *StatusServer) getWatchers() []*watcher.Watcher {
	s.mu.RLock()
	fn := s.watcherFunc
	s.mu.RUnlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs graceful shutdown when the context is done.
func (s *StatusServer) Run(ctx context.Context) error {
	s.log.Info("Status server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("status server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Status server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
