package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"go.uber.org/zap"
)

type LifecycleStage string

const (
	StageFlat     LifecycleStage = "FLAT"
	StageEntering LifecycleStage = "ENTERING"
	StageScaled   LifecycleStage = "SCALED"
	StageClosing  LifecycleStage = "CLOSING"
)

// LifecycleState is a point-in-time copy of the manager's state.
type LifecycleState struct {
	Stage                 LifecycleStage   `json:"stage"`
	Direction             domain.Direction `json:"direction"`
	EntryPrice            decimal.Decimal  `json:"entry_price"`
	EntryOrderID          string           `json:"entry_order_id,omitempty"`
	Contract1Exited       bool             `json:"contract1_exited"`
	Contract2BreakevenSet bool             `json:"contract2_breakeven_set"`
	Contract2TrailAnchor  decimal.Decimal  `json:"contract2_trail_anchor"`
	Legs                  []domain.ExitLeg `json:"legs"`
}

// Leg returns the active leg for id/role.
func (s LifecycleState) Leg(id domain.LegID, role domain.Role) (domain.ExitLeg, bool) {
	for _, l := range s.Legs {
		if l.Leg == id && l.Role == role {
			return l, true
		}
	}
	return domain.ExitLeg{}, false
}

// LifecycleManager owns the exit legs of the current position.
type LifecycleManager struct {
	cfg      config.ExitsConfig
	tickSize decimal.Decimal
	executor *OrderExecutor
	logger   *zap.Logger

	mu           sync.Mutex
	stage        LifecycleStage
	direction    domain.Direction
	entryPrice   decimal.Decimal
	entryOrderID string
	c1Exited     bool
	c2Breakeven  bool
	trailAnchor  decimal.Decimal
	legs         map[string]*domain.ExitLeg
}

func NewLifecycleManager(cfg config.ExitsConfig, tickSize decimal.Decimal, executor *OrderExecutor, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		cfg:       cfg,
		tickSize:  tickSize,
		executor:  executor,
		logger:    logger,
		stage:     StageFlat,
		direction: domain.DirectionFlat,
		legs:      make(map[string]*domain.ExitLeg),
	}
}

func (m *LifecycleManager) ticks(n int) decimal.Decimal {
	return m.tickSize.Mul(decimal.NewFromInt(int64(n)))
}

// Enter requests the entry and places both brackets around price. Any
// placement error leaves the manager in Entering so the caller can flatten.
func (m *LifecycleManager) Enter(ctx context.Context, dir domain.Direction, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage != StageFlat {
		return fmt.Errorf("entry requested while %s", m.stage)
	}

	id, err := m.executor.Enter(ctx, dir, m.cfg.Contracts)
	if err != nil {
		return err
	}

	m.stage = StageEntering
	m.direction = dir
	m.entryPrice = price
	m.entryOrderID = id
	m.legs = make(map[string]*domain.ExitLeg)

	sign := dir.Sign()
	away := func(n int) decimal.Decimal { return price.Sub(sign.Mul(m.ticks(n))) }
	toward := func(n int) decimal.Decimal { return price.Add(sign.Mul(m.ticks(n))) }

	var plan []domain.ExitLeg
	if m.cfg.Contracts == 2 {
		plan = append(plan,
			domain.ExitLeg{Leg: domain.LegScalp, Role: domain.RoleStop, Price: away(m.cfg.Contract1InitialStopTicks), Quantity: 1},
			domain.ExitLeg{Leg: domain.LegScalp, Role: domain.RoleTarget, Price: toward(m.cfg.Contract1ScalpTicks), Quantity: 1},
		)
	}
	c2Stop := away(m.cfg.Contract2InitialStopTicks)
	plan = append(plan,
		domain.ExitLeg{Leg: domain.LegRunner, Role: domain.RoleStop, Price: c2Stop, Quantity: 1},
		domain.ExitLeg{Leg: domain.LegRunner, Role: domain.RoleTarget, Price: toward(m.cfg.Contract2TargetTicks), Quantity: 1},
	)

	m.c1Exited = false
	m.c2Breakeven = false
	m.trailAnchor = c2Stop

	for _, leg := range plan {
		if err := m.place(ctx, leg); err != nil {
			return err
		}
	}

	m.logger.Info("Position bracket placed",
		zap.String("direction", string(dir)),
		zap.String("entry", price.String()),
		zap.Int("contracts", m.cfg.Contracts))
	return nil
}

// place submits leg and stores it under its tag with the new handle.
func (m *LifecycleManager) place(ctx context.Context, leg domain.ExitLeg) error {
	id, err := m.executor.PlaceExit(ctx, m.direction, leg)
	if err != nil {
		return err
	}
	leg.OrderID = id
	m.legs[ExitTag(leg.Leg, leg.Role)] = &leg
	return nil
}

// replaceStop moves a leg's stop to price with a fresh handle.
func (m *LifecycleManager) replaceStop(ctx context.Context, leg domain.LegID, price decimal.Decimal) error {
	cur, ok := m.legs[ExitTag(leg, domain.RoleStop)]
	if !ok {
		return nil
	}
	next := *cur
	next.Price = price
	next.Retries = 0
	return m.place(ctx, next)
}

// Trail runs the breakeven and trailing-stop rules for one observation.
func (m *LifecycleManager) Trail(ctx context.Context, pos domain.Position, price decimal.Decimal) error {
	if pos.IsFlat() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := pos.AveragePrice
	sign := pos.Direction.Sign()
	profitTicks := price.Sub(entry).Mul(sign).Div(m.tickSize)

	if m.cfg.Contracts == 2 && pos.Quantity == 2 && !m.c1Exited {
		c1Stop, ok := m.legs[ExitTag(domain.LegScalp, domain.RoleStop)]
		if ok && profitTicks.GreaterThanOrEqual(decimal.NewFromInt(int64(m.cfg.Contract1BreakevenTicks))) && !c1Stop.Price.Equal(entry) {
			if err := m.replaceStop(ctx, domain.LegScalp, entry); err != nil {
				return err
			}
			m.logger.Info("C1 stop moved to breakeven", zap.String("price", entry.String()))
		}
	}

	if pos.Quantity < 1 {
		return nil
	}
	if _, ok := m.legs[ExitTag(domain.LegRunner, domain.RoleStop)]; !ok {
		return nil
	}

	if !m.c2Breakeven && profitTicks.GreaterThanOrEqual(decimal.NewFromInt(int64(m.cfg.Contract2BreakevenTicks))) {
		m.trailAnchor = entry
		m.c2Breakeven = true
		if err := m.replaceStop(ctx, domain.LegRunner, entry); err != nil {
			return err
		}
		m.logger.Info("C2 stop moved to breakeven", zap.String("price", entry.String()))
	}

	if m.c2Breakeven {
		candidate := price.Sub(sign.Mul(m.ticks(m.cfg.Contract2TrailTicks)))
		better := candidate.GreaterThan(m.trailAnchor)
		if pos.Direction == domain.DirectionShort {
			better = candidate.LessThan(m.trailAnchor)
		}
		if better {
			m.trailAnchor = candidate
			if err := m.replaceStop(ctx, domain.LegRunner, candidate); err != nil {
				return err
			}
			m.logger.Info("C2 trail updated",
				zap.String("price", candidate.String()),
				zap.String("profit_ticks", profitTicks.StringFixed(1)))
		}
	}
	return nil
}

// OnOrderUpdate reacts to a venue notification. Updates are matched by order
// handle; notifications for superseded handles are ignored.
func (m *LifecycleManager) OnOrderUpdate(ctx context.Context, upd domain.OrderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if upd.OrderID != "" && upd.OrderID == m.entryOrderID {
		return m.onEntryUpdate(ctx, upd)
	}

	tag, leg := m.legByOrder(upd.OrderID)
	if leg == nil {
		return nil
	}

	switch upd.State {
	case domain.OrderFilled, domain.OrderPartiallyFilled:
		if leg.Leg == domain.LegScalp {
			m.c1Exited = true
		}
		if upd.State == domain.OrderFilled {
			delete(m.legs, ExitTag(leg.Leg, domain.RoleStop))
			delete(m.legs, ExitTag(leg.Leg, domain.RoleTarget))
		}
		m.logger.Info("Leg exited",
			zap.String("tag", tag),
			zap.String("state", string(upd.State)),
			zap.String("fill_price", upd.FillPrice.String()))

	case domain.OrderRejected, domain.OrderCancelled:
		if upd.State == domain.OrderCancelled && leg.Role == domain.RoleTarget {
			delete(m.legs, tag)
			m.logger.Warn("Target cancelled by venue", zap.String("tag", tag))
			return nil
		}
		if leg.Retries < m.cfg.MaxExitRetries {
			retry := *leg
			retry.Retries++
			m.logger.Warn("Exit leg unprotected, resubmitting",
				zap.String("tag", tag),
				zap.String("state", string(upd.State)),
				zap.String("reason", upd.Reason),
				zap.Int("attempt", retry.Retries))
			err := m.place(ctx, retry)
			if err == nil {
				return nil
			}
			m.logger.Error("Resubmit failed", zap.String("tag", tag), zap.Error(err))
		}
		return m.flattenLocked(ctx, fmt.Sprintf("%s %s", tag, upd.State))
	}
	return nil
}

// onEntryUpdate is called with mu held.
func (m *LifecycleManager) onEntryUpdate(ctx context.Context, upd domain.OrderUpdate) error {
	switch upd.State {
	case domain.OrderFilled, domain.OrderPartiallyFilled:
		if m.stage == StageEntering {
			m.stage = StageScaled
		}
		m.logger.Info("Entry filled",
			zap.String("fill_price", upd.FillPrice.String()),
			zap.Int("quantity", upd.FilledQuantity))
	case domain.OrderRejected, domain.OrderCancelled:
		m.logger.Warn("Entry not filled, cancelling bracket",
			zap.String("state", string(upd.State)),
			zap.String("reason", upd.Reason))
		m.resetLocked()
		if err := m.executor.Flatten(ctx, "entry "+string(upd.State)); err != nil {
			m.stage = StageClosing
			return err
		}
	}
	return nil
}

func (m *LifecycleManager) legByOrder(id string) (string, *domain.ExitLeg) {
	if id == "" {
		return "", nil
	}
	for tag, leg := range m.legs {
		if leg.OrderID == id {
			return tag, leg
		}
	}
	return "", nil
}

// Sync reconciles the stage with the venue position. A position that reached
// Flat by itself clears every leg and flag.
func (m *LifecycleManager) Sync(pos domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.stage == StageEntering && !pos.IsFlat():
		m.stage = StageScaled
	case (m.stage == StageScaled || m.stage == StageClosing) && pos.IsFlat():
		m.logger.Info("Position flat, lifecycle reset", zap.String("from", string(m.stage)))
		m.resetLocked()
	}
}

// Flatten closes any open position. Legs and flags are cleared only once the
// venue accepts the request; a refused flatten leaves the manager in Closing
// with every leg still tracked.
func (m *LifecycleManager) Flatten(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flattenLocked(ctx, reason)
}

func (m *LifecycleManager) flattenLocked(ctx context.Context, reason string) error {
	wasFlat := m.stage == StageFlat
	if !wasFlat {
		m.stage = StageClosing
	}
	if err := m.executor.Flatten(ctx, reason); err != nil {
		return err
	}
	m.resetLocked()
	if !wasFlat {
		m.stage = StageClosing
	}
	return nil
}

func (m *LifecycleManager) resetLocked() {
	m.stage = StageFlat
	m.direction = domain.DirectionFlat
	m.entryPrice = decimal.Zero
	m.entryOrderID = ""
	m.c1Exited = false
	m.c2Breakeven = false
	m.trailAnchor = decimal.Zero
	m.legs = make(map[string]*domain.ExitLeg)
}

func (m *LifecycleManager) Stage() LifecycleStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

func (m *LifecycleManager) Snapshot() LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()

	legs := make([]domain.ExitLeg, 0, len(m.legs))
	for _, l := range m.legs {
		legs = append(legs, *l)
	}
	sort.Slice(legs, func(i, j int) bool {
		if legs[i].Leg != legs[j].Leg {
			return legs[i].Leg < legs[j].Leg
		}
		return legs[i].Role < legs[j].Role
	})

	return LifecycleState{
		Stage:                 m.stage,
		Direction:             m.direction,
		EntryPrice:            m.entryPrice,
		EntryOrderID:          m.entryOrderID,
		Contract1Exited:       m.c1Exited,
		Contract2BreakevenSet: m.c2Breakeven,
		Contract2TrailAnchor:  m.trailAnchor,
		Legs:                  legs,
	}
}
