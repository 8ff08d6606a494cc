// Package web provides an HTTP status server for the alarm gateway.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logger"
	"github.com/sweeney/alarm-gateway/internal/status"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventLister lists recently dispatched events, newest first.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]alarm.Event, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	events     EventLister
}

// New creates a Server that reads state from the given tracker. events may
// be nil, in which case /events.json returns 404.
func New(addr string, tracker *status.Tracker, events EventLister) *Server {
	s := &Server{tracker: tracker, events: events}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events.json", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		logger.Errorf(r.Context(), "render status page: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// EventJSON is one entry of /events.json.
type EventJSON struct {
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Source    string        `json:"source"`
	Detail    string        `json:"detail,omitempty"`
	Contact   alarm.Contact `json:"contact"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.NotFound(w, r)
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		logger.Errorf(r.Context(), "list events: %v", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]EventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, EventJSON{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Source:    string(e.Source),
			Detail:    e.Detail,
			Contact:   e.Contact,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Events []EventJSON `json:"events"`
	}{Events: out})
}
