// Package server exposes the sidebar-facing HTTP API: session management
// over REST and the chat turn loop over a WebSocket.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quillpad/quill/internal/orchestrator"
	"github.com/quillpad/quill/internal/session"
)

// Server is the HTTP server the Word sidebar talks to.
type Server struct {
	store  *session.Store
	orch   *orchestrator.Orchestrator
	router chi.Router
	http   *http.Server

	turnMu sync.Mutex // one chat turn at a time
}

// New creates a new Server over the given session store and orchestrator.
func New(store *session.Store, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		store:  store,
		orch:   orch,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		// Sessions
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Put("/sessions/{id}", s.handleRenameSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/sessions/{id}/select", s.handleSelectSession)

		// Transcript of a session, newest last
		r.Get("/sessions/{id}/messages", s.handleGetTranscript)

		// One chat turn against a session
		r.Post("/sessions/{id}/turn", s.handleTurn)
		r.Post("/cancel", s.handleCancel)

		// WebSocket (no JSON content-type)
		r.Get("/sessions/{id}/ws", s.handleWebSocket)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("Quill server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")
	s.orch.Cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
