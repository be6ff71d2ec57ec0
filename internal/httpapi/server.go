// Package httpapi serves the read-only query surface over the play store
// plus the risk preview endpoint. It never performs transitions; the monitor
// owns all mutation.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"playtrader/internal/domain"
	"playtrader/internal/engine"
	"playtrader/internal/history"
	"playtrader/internal/playstore"
)

// Server serves the play query API.
type Server struct {
	store   *playstore.Store
	history *history.Store
	gate    *engine.RiskGate
	log     *slog.Logger
}

// NewServer creates a Server over the given store, history log, and risk
// gate.
func NewServer(store *playstore.Store, hist *history.Store, gate *engine.RiskGate, log *slog.Logger) *Server {
	return &Server{store: store, history: hist, gate: gate, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/plays", s.handleListPlays)
	mux.HandleFunc("GET /api/plays/{id}", s.handleGetPlay)
	mux.HandleFunc("GET /api/plays/by-name/{name}", s.handleGetPlayByName)
	mux.HandleFunc("GET /api/counts", s.handleCounts)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistory)
	mux.HandleFunc("POST /api/risk/preview", s.handleRiskPreview)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// PlaysResponse is the payload for GET /api/plays.
type PlaysResponse struct {
	Status string         `json:"status"`
	Plays  []*domain.Play `json:"plays"`
}

// CountsResponse is the payload for GET /api/counts.
type CountsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// HistoryResponse is the payload for GET /api/history/{id}.
type HistoryResponse struct {
	PlayID  string           `json:"play_id"`
	Records []history.Record `json:"records"`
}

func (s *Server) handleListPlays(w http.ResponseWriter, r *http.Request) {
	status := domain.PlayStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.StatusOpen
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	refs, err := s.store.List(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing plays failed")
		return
	}

	plays := make([]*domain.Play, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		play, err := s.store.Load(ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			s.log.Warn("skipping unreadable play", "id", ref.ID, "error", err)
			continue
		}
		plays = append(plays, play)
	}
	writeJSON(w, PlaysResponse{Status: string(status), Plays: plays})
}

func (s *Server) handleGetPlay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	play, err := s.store.Find(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("play %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "loading play failed")
		return
	}
	writeJSON(w, play)
}

func (s *Server) handleGetPlayByName(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	play, err := s.store.FindByName(name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("play named %q not found", name))
			return
		}
		writeError(w, http.StatusInternalServerError, "loading play failed")
		return
	}
	writeJSON(w, play)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, len(domain.AllStatuses))
	total := 0
	for _, st := range domain.AllStatuses {
		n, err := s.store.Count(st)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "counting plays failed")
			return
		}
		counts[string(st)] = n
		total += n
	}
	writeJSON(w, CountsResponse{Counts: counts, Total: total})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := s.history.ListByPlay(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading history failed")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, HistoryResponse{PlayID: id, Records: records})
}

// handleRiskPreview runs the risk checks for a prospective play without
// storing or submitting anything.
func (s *Server) handleRiskPreview(w http.ResponseWriter, r *http.Request) {
	var play domain.Play
	if err := json.NewDecoder(r.Body).Decode(&play); err != nil {
		writeError(w, http.StatusBadRequest, "invalid play payload")
		return
	}
	if play.Symbol == "" || play.StrikePrice <= 0 || play.Contracts <= 0 {
		writeError(w, http.StatusBadRequest, "symbol, strike_price, and contracts are required")
		return
	}
	if play.PositionSide == "" {
		play.PositionSide = domain.SideShort
	}

	decision, err := s.gate.Preview(r.Context(), &play)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("risk preview unavailable: %v", err))
		return
	}
	writeJSON(w, decision)
}
