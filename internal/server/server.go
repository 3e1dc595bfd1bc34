// Package server exposes conversations, transfer sessions and component
// resolution over HTTP, with a WebSocket stream of conversation updates.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/metrics"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/service"
	"github.com/Veraticus/banktalk/internal/transfer"
)

// SessionStore loads and saves transfer sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*transfer.Session, error)
	Update(ctx context.Context, session *transfer.Session) error
	Delete(ctx context.Context, id string) error
}

// Config wires a Server to its collaborators.
type Config struct {
	Resolver      *resolver.Resolver
	Conversations *conversation.Registry
	Flow          *transfer.Flow
	Sessions      SessionStore
	Analytics     service.AnalyticsFetcher
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	handler  http.Handler
	upgrader websocket.Upgrader
	locks    map[string]*sync.Mutex
	locksMu  sync.Mutex
	streams  sync.WaitGroup
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		locks:  make(map[string]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = s.recoverer(s.requestID(s.observe(mux)))
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.cfg.Metrics.Handler())

	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("GET /api/rules/{module}/{submodule}", s.handleGetRule)
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/analytics", s.handleAnalytics)

	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleSubmitMessage)
	mux.HandleFunc("POST /api/conversations/{id}/messages/{messageId}/parameters", s.handleFollowUp)
	mux.HandleFunc("PUT /api/conversations/{id}/mode", s.handleSetMode)
	mux.HandleFunc("GET /api/conversations/{id}/stream", s.handleStream)

	mux.HandleFunc("GET /api/transfers/{sid}", s.handleGetTransfer)
	mux.HandleFunc("DELETE /api/transfers/{sid}", s.handleDeleteTransfer)
	mux.HandleFunc("POST /api/transfers/{sid}/{action}", s.handleTransferAction)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.streams.Wait()
	s.logger.Info("HTTP server stopped")
	return nil
}

// sessionLock serializes operations on one transfer session.
func (s *Server) sessionLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

func (s *Server) dropSessionLock(id string) {
	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.cfg.Conversations != nil {
		body["conversations"] = s.cfg.Conversations.Len()
	}
	writeJSON(w, http.StatusOK, body)
}
