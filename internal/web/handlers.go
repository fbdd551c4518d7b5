package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/storage"
	"go.uber.org/zap"
)

type addAnnotationRequest struct {
	Price  decimal.Decimal `json:"price"`
	Tag    string          `json:"tag"`
	Source string          `json:"source"`
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	anns, err := s.annotations.ListStoredAnnotations(r.Context())
	if err != nil {
		s.logger.Error("Failed to list annotations", zap.Error(err))
		http.Error(w, "Failed to list annotations", http.StatusInternalServerError)
		return
	}
	if anns == nil {
		anns = []*domain.StoredAnnotation{}
	}
	s.writeJSON(w, http.StatusOK, anns)
}

func (s *Server) handleAddAnnotation(w http.ResponseWriter, r *http.Request) {
	var req addAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	if !req.Price.IsPositive() || req.Tag == "" {
		http.Error(w, "price must be positive and tag non-empty", http.StatusBadRequest)
		return
	}

	ann := &domain.StoredAnnotation{
		Price:  req.Price,
		Text:   req.Tag,
		Source: req.Source,
	}
	if ann.Source == "" {
		ann.Source = "http"
	}
	if err := s.annotations.SaveAnnotation(r.Context(), ann); err != nil {
		s.logger.Error("Failed to save annotation", zap.Error(err))
		http.Error(w, "Failed to save annotation", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Annotation added",
		zap.String("id", ann.ID),
		zap.String("price", ann.Price.String()),
		zap.String("tag", ann.Text))
	s.writeJSON(w, http.StatusCreated, ann)
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.annotations.DeleteAnnotation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to delete annotation", zap.String("id", id), zap.Error(err))
		http.Error(w, "Failed to delete annotation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
