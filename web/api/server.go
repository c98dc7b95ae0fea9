// Package api serves the read-only status surface: JSON views of the
// work queue and the cycle ledger, and a websocket feed of live
// pipeline events. It never touches the source tree.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/runlog"
)

// Items is the work item store view the server reads from.
type Items interface {
	Recent(ctx context.Context, limit int) ([]domain.WorkItem, error)
	InFlight(ctx context.Context) ([]domain.WorkItem, error)
	Get(ctx context.Context, id int64) (*domain.WorkItem, error)
}

// History is the cycle ledger view.
type History interface {
	Recent(limit int) ([]*runlog.Cycle, error)
	ForItem(itemID int64) ([]*runlog.Cycle, error)
	Stats() (*runlog.Stats, error)
}

// Server is the HTTP status server.
type Server struct {
	items   Items
	history History
	hub     *Hub
	logger  *slog.Logger
	addr    string
	mux     *http.ServeMux
}

// NewServer creates a status server. history may be nil when the ledger
// is disabled.
func NewServer(items Items, history History, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		items:   items,
		history: history,
		hub:     NewHub(logger),
		logger:  logger,
		addr:    addr,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/items", s.listItemsHandler())
	s.mux.HandleFunc("/api/items/", s.getItemHandler())
	s.mux.HandleFunc("/api/history", s.historyHandler())
	s.mux.HandleFunc("/ws", s.hub.HandleWS)
}

// Hub returns the event hub so the daemon can wire it to the pipeline.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
