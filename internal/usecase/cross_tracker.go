package usecase

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/domain"
)

// CrossTracker keeps the directional crossing flags for every level seen this
// session. Entries for levels dropped by a refresh are left in place.
type CrossTracker struct {
	states map[string]*domain.CrossState
	mu     sync.RWMutex
}

func NewCrossTracker() *CrossTracker {
	return &CrossTracker{
		states: make(map[string]*domain.CrossState),
	}
}

// Update applies one price step to every level. It must complete before the
// signal evaluator reads the same tick.
func (t *CrossTracker) Update(levels []domain.PriceLevel, prevPrice, currPrice decimal.Decimal, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, level := range levels {
		key := level.Key()
		state, ok := t.states[key]
		if !ok {
			state = &domain.CrossState{}
			t.states[key] = state
		}

		switch {
		case prevPrice.LessThanOrEqual(level.Price) && currPrice.GreaterThan(level.Price):
			state.CrossedAbove = true
			state.CrossedBelow = false
			state.LastCrossTime = at
		case prevPrice.GreaterThanOrEqual(level.Price) && currPrice.LessThan(level.Price):
			state.CrossedBelow = true
			state.CrossedAbove = false
			state.LastCrossTime = at
		}
	}
}

// GetState returns a copy of the level's state and whether it exists.
func (t *CrossTracker) GetState(price decimal.Decimal) (domain.CrossState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[domain.LevelKey(price)]; ok {
		return *s, true
	}
	return domain.CrossState{}, false
}

// UpdateState runs fn against the level's state under the tracker lock. It is
// a no-op for levels that were never observed.
func (t *CrossTracker) UpdateState(price decimal.Decimal, fn func(*domain.CrossState)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[domain.LevelKey(price)]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// ConsumeRecross fires when the opposite cross was recorded earlier and this
// tick reverses back across the level in the requested direction. The opposite
// flag is cleared when it fires.
func (t *CrossTracker) ConsumeRecross(dir domain.Direction, level, prevPrice, currPrice decimal.Decimal) bool {
	fired := false
	t.UpdateState(level, func(s *domain.CrossState) {
		switch dir {
		case domain.DirectionLong:
			if s.CrossedBelow && prevPrice.LessThan(level) && currPrice.GreaterThanOrEqual(level) {
				s.CrossedBelow = false
				fired = true
			}
		case domain.DirectionShort:
			if s.CrossedAbove && prevPrice.GreaterThan(level) && currPrice.LessThanOrEqual(level) {
				s.CrossedAbove = false
				fired = true
			}
		}
	})
	return fired
}

func (t *CrossTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
