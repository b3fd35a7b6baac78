// Package server provides the SafeSchool admin HTTP API, the live event feed
// and the camera preview stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/safeschool/internal/server/api"
	"github.com/ayusman/safeschool/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir   string
	Store       *store.Store
	Events      *EventHub
	Frames      *FrameHub
	BotUsername string
}

// Server is the HTTP front of a running SafeSchool instance.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	start      time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	s := &Server{
		config: config,
		router: r,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/api/health", s.handleHealth)

	if s.config.Store != nil {
		r.Mount("/api/bindings", api.NewBindingHandler(s.config.Store).Routes())
		r.Mount("/api/tokens", api.NewTokenHandler(s.config.Store, s.config.BotUsername).Routes())
		r.Get("/api/events", api.NewEventHandler(s.config.Store).List)
	}

	if s.config.Events != nil {
		r.Get("/api/events/ws", s.config.Events.ServeHTTP)
	}

	if s.config.Frames != nil {
		r.Get("/api/stream", s.config.Frames.ServeHTTP)
	}

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Events != nil {
		response["feed_clients"] = s.config.Events.Clients()
	}
	if s.config.Frames != nil {
		response["stream_viewers"] = s.config.Frames.Viewers()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Println("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
