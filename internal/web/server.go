package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"github.com/vitos/level_cross_trader/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router      *http.ServeMux
	server      *http.Server
	annotations domain.AnnotationRepository
	journal     domain.JournalRepository
	service     *usecase.StrategyService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewServer(
	port int,
	annotations domain.AnnotationRepository,
	journal domain.JournalRepository,
	service *usecase.StrategyService,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		annotations: annotations,
		journal:     journal,
		service:     service,
		metrics:     m,
		logger:      logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Levels
	s.router.HandleFunc("GET /levels", s.handleLevels)
	s.router.HandleFunc("POST /levels/refresh", s.handleRefreshLevels)

	// Annotations
	s.router.HandleFunc("GET /annotations", s.handleListAnnotations)
	s.router.HandleFunc("POST /annotations", s.handleAddAnnotation)
	s.router.HandleFunc("DELETE /annotations/{id}", s.handleDeleteAnnotation)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Journal
	s.router.HandleFunc("GET /orders", s.handleOrders)
	s.router.HandleFunc("GET /signals", s.handleSignals)
	s.router.HandleFunc("GET /daily", s.handleDaily)

	s.router.Handle("GET /metrics", s.metrics.Handler())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
