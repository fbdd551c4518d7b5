package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/storage"
	"go.uber.org/zap"
)

const defaultJournalLimit = 50

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Levels())
}

func (s *Server) handleRefreshLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.service.RefreshLevels(r.Context())
	if err != nil {
		s.logger.Error("Failed to refresh levels", zap.Error(err))
		http.Error(w, "Failed to refresh levels", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, levels)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

// parseLimit reads ?limit=, defaulting to defaultJournalLimit.
func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultJournalLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	events, err := s.journal.ListOrderEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list order events", zap.Error(err))
		http.Error(w, "Failed to list orders", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*domain.OrderUpdate{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}

	signals, err := s.journal.ListSignals(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list signals", zap.Error(err))
		http.Error(w, "Failed to list signals", http.StatusInternalServerError)
		return
	}
	if signals == nil {
		signals = []*domain.SignalRecord{}
	}
	s.writeJSON(w, http.StatusOK, signals)
}

// handleDaily serves the journaled P&L for ?date=YYYY-MM-DD.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	pnl, err := s.journal.GetDailyPnL(r.Context(), date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load daily pnl", zap.String("date", date.Format("2006-01-02")), zap.Error(err))
		http.Error(w, "Failed to load daily pnl", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, pnl)
}
