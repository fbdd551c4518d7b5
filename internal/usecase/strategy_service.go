package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

type ObservationStatus string

const (
	ObservationOK      ObservationStatus = "ok"
	ObservationSkipped ObservationStatus = "skipped"
	ObservationFault   ObservationStatus = "fault"
)

// ObservationResult is the outcome of processing one bar.
type ObservationResult struct {
	Status ObservationStatus
	Reason string
	Err    error
}

func OK() ObservationResult { return ObservationResult{Status: ObservationOK} }

func Skipped(reason string) ObservationResult {
	return ObservationResult{Status: ObservationSkipped, Reason: reason}
}

func Fault(err error) ObservationResult {
	return ObservationResult{Status: ObservationFault, Reason: err.Error(), Err: err}
}

// StatusReport is what the HTTP surface shows.
type StatusReport struct {
	Symbol        string           `json:"symbol"`
	BarsSeen      int              `json:"bars_seen"`
	PreviousPrice decimal.Decimal  `json:"previous_price"`
	LastResult    string           `json:"last_result"`
	LastReason    string           `json:"last_reason,omitempty"`
	Levels        int              `json:"levels"`
	Lifecycle     LifecycleState   `json:"lifecycle"`
	Daily         domain.DailyPnL  `json:"daily"`
	LastBarTime   time.Time        `json:"last_bar_time"`
	Position      *domain.Position `json:"position,omitempty"`
}

// StrategyService runs the per-observation pipeline and dispatches venue
// notifications to the lifecycle manager. One event is processed at a time.
type StrategyService struct {
	cfg     *config.Config
	source  domain.AnnotationSource
	venue   domain.Venue
	journal domain.JournalRepository
	metrics *metrics.Metrics
	logger  *zap.Logger

	registry  *LevelRegistry
	tracker   *CrossTracker
	cooldown  *CooldownLedger
	evaluator *SignalEvaluator
	executor  *OrderExecutor
	lifecycle *LifecycleManager
	governor  *RiskGovernor
	window    *TradingWindow

	mu          sync.Mutex
	barsSeen    int
	lastClose   decimal.Decimal
	prevPrice   decimal.Decimal
	hasPrev     bool
	refreshedOn time.Time
	lastBarTime time.Time
	lastResult  ObservationResult
}

func NewStrategyService(
	cfg *config.Config,
	source domain.AnnotationSource,
	venue domain.Venue,
	journal domain.JournalRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StrategyService {
	registry := NewLevelRegistry(cfg.Levels, logger)
	tracker := NewCrossTracker()
	cooldown := NewCooldownLedger(cfg.CooldownWindow())
	executor := NewOrderExecutor(venue, m, logger)

	return &StrategyService{
		cfg:       cfg,
		source:    source,
		venue:     venue,
		journal:   journal,
		metrics:   m,
		logger:    logger,
		registry:  registry,
		tracker:   tracker,
		cooldown:  cooldown,
		evaluator: NewSignalEvaluator(cfg, registry, tracker, cooldown),
		executor:  executor,
		lifecycle: NewLifecycleManager(cfg.Exits, cfg.TickSize(), executor, logger),
		governor:  NewRiskGovernor(cfg.Limits, logger),
		window:    NewTradingWindow(cfg.Window, logger),
	}
}

// ProcessBar runs one observation through the pipeline. A fault, including a
// panic, flattens any open position; the next bar is processed normally.
func (s *StrategyService) ProcessBar(ctx context.Context, bar domain.Bar) (res ObservationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			res = Fault(fmt.Errorf("panic in observation: %v", rec))
		}
		if res.Status == ObservationFault {
			s.failSafe(ctx, bar, res.Err)
		}
		s.lastResult = res
		s.metrics.Observation(string(res.Status))
	}()

	s.barsSeen++
	s.lastBarTime = bar.Time
	prevClose := s.lastClose
	s.lastClose = bar.Close

	if s.barsSeen <= s.cfg.BarsRequired {
		return Skipped("warm-up")
	}
	return s.evaluate(ctx, bar, prevClose)
}

func (s *StrategyService) evaluate(ctx context.Context, bar domain.Bar, prevClose decimal.Decimal) ObservationResult {
	pos, err := s.venue.GetPosition(ctx)
	if err != nil {
		return Fault(fmt.Errorf("get position: %w", err))
	}
	realized, err := s.venue.RealizedPnL(ctx)
	if err != nil {
		return Fault(fmt.Errorf("realized pnl: %w", err))
	}

	verdict := s.governor.Observe(bar.Time, pos, realized, bar.Close, s.cfg.PointValue())
	s.metrics.DailyPnL(verdict.State.Realized, verdict.State.Unrealized, verdict.Halted)
	if verdict.DateChanged || verdict.JustTripped {
		s.journalDaily(ctx, verdict.State)
	}
	if verdict.Halted {
		if verdict.JustTripped || !pos.IsFlat() {
			if err := s.lifecycle.Flatten(ctx, "daily limit reached"); err != nil {
				return Fault(err)
			}
		}
		return Skipped("daily limit reached")
	}

	// A flatten the venue refused earlier is retried until the position is
	// gone, inside or outside the window.
	if !pos.IsFlat() && s.lifecycle.Stage() == StageClosing {
		if err := s.lifecycle.Flatten(ctx, "flatten retry"); err != nil {
			s.logger.Error("Flatten retry failed", zap.Error(err))
			return Skipped("flatten pending")
		}
		return Skipped("flattening")
	}

	if !s.window.IsWithinWindow(bar.Time) {
		return Skipped("outside trading window")
	}

	s.refreshLevels(ctx, bar.Time)

	curr := bar.Close
	prev := curr
	switch {
	case s.hasPrev:
		prev = s.prevPrice
	case prevClose.IsPositive():
		prev = prevClose
	}

	s.tracker.Update(s.registry.Levels(), prev, curr, bar.Time)
	s.lifecycle.Sync(pos)

	if !pos.IsFlat() {
		if err := s.lifecycle.Trail(ctx, pos, curr); err != nil {
			return Fault(fmt.Errorf("trail: %w", err))
		}
	} else if s.lifecycle.Stage() == StageFlat {
		if err := s.checkSignals(ctx, curr, prev, bar.Time); err != nil {
			return Fault(err)
		}
	}

	s.prevPrice = curr
	s.hasPrev = true
	return OK()
}

// refreshLevels reloads annotations once per date, or every bar while the
// registry is empty. A source error keeps the previous levels.
func (s *StrategyService) refreshLevels(ctx context.Context, at time.Time) {
	date := truncateDate(at)
	if date.Equal(s.refreshedOn) && s.registry.Len() > 0 {
		return
	}
	annotations, err := s.source.ListAnnotations(ctx)
	if err != nil {
		s.logger.Error("Failed to load annotations", zap.Error(err))
		return
	}
	s.registry.Refresh(annotations)
	s.refreshedOn = date
	s.metrics.Levels(s.registry.Len())
}

// checkSignals evaluates buy then sell and takes at most one entry.
func (s *StrategyService) checkSignals(ctx context.Context, curr, prev decimal.Decimal, now time.Time) error {
	for _, dir := range []domain.Direction{domain.DirectionLong, domain.DirectionShort} {
		sig, ok := s.evaluator.Evaluate(dir, curr, prev, now)
		if !ok {
			continue
		}

		s.logger.Info("Signal fired",
			zap.String("direction", string(dir)),
			zap.String("level", sig.Level.Price.String()),
			zap.String("description", sig.Level.Description),
			zap.String("trigger", string(sig.Trigger)),
			zap.String("price", curr.String()))

		if err := s.lifecycle.Enter(ctx, dir, curr); err != nil {
			return fmt.Errorf("enter %s at %s: %w", dir, sig.Level.Price, err)
		}
		s.cooldown.Record(sig.Level.Price, now)
		s.metrics.Signal(string(dir), string(sig.Trigger))

		if s.journal != nil {
			rec := &domain.SignalRecord{
				Time:        now,
				Direction:   dir,
				LevelPrice:  sig.Level.Price,
				Description: sig.Level.Description,
				EntryPrice:  curr,
				Quantity:    s.cfg.Exits.Contracts,
			}
			if err := s.journal.SaveSignal(ctx, rec); err != nil {
				s.logger.Error("Failed to journal signal", zap.Error(err))
			}
		}
		return nil
	}
	return nil
}

func (s *StrategyService) failSafe(ctx context.Context, bar domain.Bar, cause error) {
	s.logger.Error("Observation fault, flattening",
		zap.Time("bar_time", bar.Time),
		zap.Error(cause))
	if err := s.lifecycle.Flatten(ctx, "observation fault"); err != nil {
		s.logger.Error("Flatten after fault failed", zap.Error(err))
	}
}

func (s *StrategyService) journalDaily(ctx context.Context, state domain.DailyPnL) {
	if s.journal == nil {
		return
	}
	if err := s.journal.SaveDailyPnL(ctx, &state); err != nil {
		s.logger.Error("Failed to journal daily pnl", zap.Error(err))
	}
}

// HandleOrderUpdate records a venue notification and passes it to the
// lifecycle manager.
func (s *StrategyService) HandleOrderUpdate(ctx context.Context, upd domain.OrderUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Panic handling order update", zap.Any("panic", rec))
			if err := s.lifecycle.Flatten(ctx, "order update fault"); err != nil {
				s.logger.Error("Flatten after fault failed", zap.Error(err))
			}
		}
	}()

	s.metrics.OrderUpdate(string(upd.State))
	if s.journal != nil {
		if err := s.journal.SaveOrderEvent(ctx, &upd); err != nil {
			s.logger.Error("Failed to journal order event", zap.Error(err))
		}
	}

	if err := s.lifecycle.OnOrderUpdate(ctx, upd); err != nil {
		s.logger.Error("Order update handling failed",
			zap.String("order_id", upd.OrderID),
			zap.String("tag", upd.Tag),
			zap.Error(err))
	}
}

// Run consumes bars and venue notifications until ctx is cancelled or the bar
// channel closes. A bar-driven venue is advanced with each bar right before
// the strategy observes it, so bar N+1 never reaches the venue while bar N is
// still being processed.
func (s *StrategyService) Run(ctx context.Context, bars <-chan domain.Bar) error {
	updates := s.venue.Updates()
	sim, _ := s.venue.(domain.BarDriven)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.HandleOrderUpdate(ctx, upd)
		case bar, ok := <-bars:
			if !ok {
				return nil
			}
			if sim != nil {
				sim.OnBar(bar)
			}
			res := s.ProcessBar(ctx, bar)
			if res.Status == ObservationSkipped {
				s.logger.Debug("Observation skipped",
					zap.Time("bar_time", bar.Time),
					zap.String("reason", res.Reason))
			}
		}
	}
}

// RefreshLevels reloads the registry now, outside the daily schedule.
func (s *StrategyService) RefreshLevels(ctx context.Context) ([]domain.PriceLevel, error) {
	if s.source == nil {
		return nil, errors.New("no annotation source")
	}
	annotations, err := s.source.ListAnnotations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	levels := s.registry.Refresh(annotations)
	if !s.lastBarTime.IsZero() {
		s.refreshedOn = truncateDate(s.lastBarTime)
	}
	s.metrics.Levels(len(levels))
	return levels, nil
}

// Levels returns the registry contents with their cross state.
func (s *StrategyService) Levels() []LevelView {
	levels := s.registry.Levels()
	out := make([]LevelView, 0, len(levels))
	for _, l := range levels {
		v := LevelView{PriceLevel: l}
		if st, ok := s.tracker.GetState(l.Price); ok {
			v.Cross = &st
		}
		if t, ok := s.cooldown.LastTrade(l.Price); ok {
			v.LastTrade = &t
		}
		out = append(out, v)
	}
	return out
}

// LevelView is a level with its runtime state.
type LevelView struct {
	domain.PriceLevel
	Cross     *domain.CrossState `json:"cross,omitempty"`
	LastTrade *time.Time         `json:"last_trade,omitempty"`
}

func (s *StrategyService) Status(ctx context.Context) StatusReport {
	s.mu.Lock()
	report := StatusReport{
		Symbol:        s.cfg.Instrument.Symbol,
		BarsSeen:      s.barsSeen,
		PreviousPrice: s.prevPrice,
		LastResult:    string(s.lastResult.Status),
		LastReason:    s.lastResult.Reason,
		LastBarTime:   s.lastBarTime,
	}
	s.mu.Unlock()

	report.Levels = s.registry.Len()
	report.Lifecycle = s.lifecycle.Snapshot()
	report.Daily = s.governor.State()
	if pos, err := s.venue.GetPosition(ctx); err == nil {
		report.Position = &pos
	}
	return report
}
