package usecase

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/domain"
)

// CooldownLedger remembers when each level last produced a trade. A zero
// window disables it.
type CooldownLedger struct {
	window time.Duration

	mu        sync.RWMutex
	lastTrade map[string]time.Time
}

func NewCooldownLedger(window time.Duration) *CooldownLedger {
	return &CooldownLedger{
		window:    window,
		lastTrade: make(map[string]time.Time),
	}
}

func (c *CooldownLedger) Enabled() bool {
	return c.window > 0
}

// OnCooldown reports whether less than the window has elapsed since the
// level's last trade, measured against now (the observation time).
func (c *CooldownLedger) OnCooldown(price decimal.Decimal, now time.Time) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.RLock()
	last, ok := c.lastTrade[domain.LevelKey(price)]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(last) < c.window
}

// Record marks the level as traded at t. Called when a signal is consumed.
func (c *CooldownLedger) Record(price decimal.Decimal, t time.Time) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	c.lastTrade[domain.LevelKey(price)] = t
	c.mu.Unlock()
}

// LastTrade returns the recorded trade time for the level.
func (c *CooldownLedger) LastTrade(price decimal.Decimal) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastTrade[domain.LevelKey(price)]
	return t, ok
}
