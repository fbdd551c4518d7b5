package usecase

import (
	"time"
	_ "time/tzdata"

	"github.com/vitos/level_cross_trader/internal/config"
	"go.uber.org/zap"
)

// TradingWindow gates activity to [start, end) local exchange time.
type TradingWindow struct {
	enabled bool
	start   int
	end     int
	loc     *time.Location
	logger  *zap.Logger
}

// NewTradingWindow resolves the timezone once. A resolution failure is logged
// and leaves the window open.
func NewTradingWindow(cfg config.WindowConfig, logger *zap.Logger) *TradingWindow {
	w := &TradingWindow{
		enabled: cfg.Enabled,
		start:   cfg.StartHour*60 + cfg.StartMinute,
		end:     cfg.EndHour*60 + cfg.EndMinute,
		logger:  logger,
	}
	if !cfg.Enabled {
		return w
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("Trading window timezone unavailable, window left open",
			zap.String("timezone", cfg.Timezone), zap.Error(err))
		return w
	}
	w.loc = loc
	return w
}

// IsWithinWindow compares hour and minute of t in the exchange timezone.
func (w *TradingWindow) IsWithinWindow(t time.Time) bool {
	if !w.enabled {
		return true
	}
	if w.loc == nil {
		return true
	}
	local := t.In(w.loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= w.start && minute < w.end
}
