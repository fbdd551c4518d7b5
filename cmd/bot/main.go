package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/feed"
	"github.com/vitos/level_cross_trader/internal/infrastructure/logger"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"github.com/vitos/level_cross_trader/internal/infrastructure/storage"
	"github.com/vitos/level_cross_trader/internal/infrastructure/venue"
	"github.com/vitos/level_cross_trader/internal/usecase"
	"github.com/vitos/level_cross_trader/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Venue
	paper := venue.NewPaperVenue(cfg.PointValue(), log.Named("venue"))
	defer paper.Close()

	// 5. Init Service
	m := metrics.New()
	svc := usecase.NewStrategyService(cfg, store, paper, store, m, log.Named("strategy"))
	if _, err := svc.RefreshLevels(context.Background()); err != nil {
		log.Error("Failed to load levels", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 6. Connect Feed
	// The strategy advances the paper venue with each bar itself, one bar at a
	// time, before evaluating it.
	bars := make(chan domain.Bar)
	if cfg.Feed.URL != "" {
		f := feed.NewWSFeed(cfg.Feed.URL, cfg.Instrument.Symbol, log.Named("feed"))
		go func() {
			if err := f.Run(ctx, bars); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Feed stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("No feed url configured, waiting for shutdown")
	}

	// 7. Start Strategy
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.Run(ctx, bars); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Strategy stopped", zap.Error(err))
		}
	}()

	// 8. Start Server
	server := web.NewServer(cfg.Server.Port, store, store, svc, m, log.Named("web"))
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	<-done
}
