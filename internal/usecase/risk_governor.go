package usecase

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"go.uber.org/zap"
)

// RiskVerdict is the governor's answer for one observation.
type RiskVerdict struct {
	State domain.DailyPnL
	// Halted is true for the rest of the date once a limit is reached.
	Halted bool
	// JustTripped is true only on the observation that reached the limit.
	JustTripped bool
	// DateChanged is true on the first observation of a new trading date.
	DateChanged bool
}

// RiskGovernor tracks daily P&L against the loss and target limits.
type RiskGovernor struct {
	enableLoss   bool
	lossLimit    decimal.Decimal
	enableTarget bool
	targetLimit  decimal.Decimal
	logger       *zap.Logger

	mu       sync.Mutex
	state    domain.DailyPnL
	baseline decimal.Decimal
}

func NewRiskGovernor(cfg config.LimitsConfig, logger *zap.Logger) *RiskGovernor {
	return &RiskGovernor{
		enableLoss:   cfg.EnableDailyLossLimit,
		lossLimit:    decimal.NewFromFloat(cfg.DailyLossLimit),
		enableTarget: cfg.EnableDailyTargetLimit,
		targetLimit:  decimal.NewFromFloat(cfg.DailyTargetLimit),
		logger:       logger,
	}
}

// Observe updates the daily state. cumulativeRealized is the venue's closed
// trade P&L since start; the daily figure is measured from the value seen at
// the date rollover. Earlier dates are excluded; the limits are not checked
// against the all-time cumulative figure.
func (g *RiskGovernor) Observe(at time.Time, pos domain.Position, cumulativeRealized, price, pointValue decimal.Decimal) RiskVerdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	var verdict RiskVerdict
	date := truncateDate(at)
	if !date.Equal(g.state.TradingDate) {
		g.state = domain.DailyPnL{TradingDate: date}
		g.baseline = cumulativeRealized
		verdict.DateChanged = true
		g.logger.Info("New trading date", zap.Time("date", date))
	}

	g.state.Realized = cumulativeRealized.Sub(g.baseline)
	g.state.Unrealized = Unrealized(pos, price, pointValue)

	total := g.state.Total()
	breached := (g.enableLoss && total.LessThanOrEqual(g.lossLimit.Neg())) ||
		(g.enableTarget && total.GreaterThanOrEqual(g.targetLimit))

	if breached && !g.state.LimitReached {
		g.state.LimitReached = true
		verdict.JustTripped = true
		g.logger.Warn("Daily limit reached",
			zap.String("daily_pnl", total.StringFixed(2)),
			zap.Time("date", date))
	}

	verdict.Halted = g.state.LimitReached
	verdict.State = g.state
	return verdict
}

func (g *RiskGovernor) State() domain.DailyPnL {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Unrealized values the open position at price in account currency.
func Unrealized(pos domain.Position, price, pointValue decimal.Decimal) decimal.Decimal {
	if pos.IsFlat() {
		return decimal.Zero
	}
	return price.Sub(pos.AveragePrice).
		Mul(pos.Direction.Sign()).
		Mul(decimal.NewFromInt(int64(pos.Quantity))).
		Mul(pointValue)
}

// truncateDate keeps the calendar date in the observation's own location.
func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
