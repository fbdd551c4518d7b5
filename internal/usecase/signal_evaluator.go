package usecase

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
)

// Trigger names the rule that fired a signal.
type Trigger string

const (
	TriggerRecross   Trigger = "recross"
	TriggerCrossover Trigger = "crossover"
	TriggerTouch     Trigger = "touch"
)

// Signal is the first level that fired for a direction.
type Signal struct {
	Direction   domain.Direction
	Level       domain.PriceLevel
	Trigger     Trigger
	ObservedAt  time.Time
	PriceAtFire decimal.Decimal
}

type keywordRule struct {
	enabled bool
	keyword string
}

// SignalEvaluator classifies levels by keyword and applies the trigger rules.
type SignalEvaluator struct {
	registry *LevelRegistry
	tracker  *CrossTracker
	cooldown *CooldownLedger

	buyRules  []keywordRule
	sellRules []keywordRule
	glRule    keywordRule

	proximity      decimal.Decimal
	crossover      bool
	touch          bool
	useLabelFilter bool
	requireLabel   bool
	labelToken     string
}

func NewSignalEvaluator(cfg *config.Config, registry *LevelRegistry, tracker *CrossTracker, cooldown *CooldownLedger) *SignalEvaluator {
	lv := cfg.Levels
	return &SignalEvaluator{
		registry: registry,
		tracker:  tracker,
		cooldown: cooldown,
		buyRules: []keywordRule{
			{lv.UseSupport, lv.KeywordSupport},
			{lv.UsePivotBull, lv.KeywordPivotBull},
			{lv.UseStrengthConfirmed, lv.KeywordStrengthConfirmed},
		},
		sellRules: []keywordRule{
			{lv.UseResistance, lv.KeywordResistance},
			{lv.UsePivotBear, lv.KeywordPivotBear},
			{lv.UseWeaknessConfirmed, lv.KeywordWeaknessConfirmed},
		},
		glRule:         keywordRule{lv.UseGL, lv.KeywordGL},
		proximity:      cfg.TickSize().Mul(decimal.NewFromInt(int64(cfg.Entry.PriceProximityTicks))),
		crossover:      cfg.Entry.TradeOnCrossover,
		touch:          cfg.Entry.TradeOnTouch,
		useLabelFilter: cfg.Entry.UseLabelFilter,
		requireLabel:   cfg.Entry.RequireLabel,
		labelToken:     strings.ToLower(cfg.Entry.LabelToken),
	}
}

// Evaluate walks the registry in order and returns the first level that fires
// for dir. The caller records the cooldown when it consumes the signal.
func (e *SignalEvaluator) Evaluate(dir domain.Direction, curr, prev decimal.Decimal, now time.Time) (Signal, bool) {
	if dir != domain.DirectionLong && dir != domain.DirectionShort {
		return Signal{}, false
	}

	for _, level := range e.registry.Levels() {
		if e.cooldown.OnCooldown(level.Price, now) {
			continue
		}
		if !e.passesLabelFilter(level.Description) {
			continue
		}
		if !e.Eligible(dir, level, curr) {
			continue
		}
		if trigger, ok := e.fire(dir, level.Price, curr, prev); ok {
			return Signal{
				Direction:   dir,
				Level:       level,
				Trigger:     trigger,
				ObservedAt:  now,
				PriceAtFire: curr,
			}, true
		}
	}
	return Signal{}, false
}

// Eligible reports whether the level's description qualifies it for dir at the
// current price.
func (e *SignalEvaluator) Eligible(dir domain.Direction, level domain.PriceLevel, curr decimal.Decimal) bool {
	desc := strings.ToLower(level.Description)

	rules := e.buyRules
	if dir == domain.DirectionShort {
		rules = e.sellRules
	}
	for _, r := range rules {
		if matches(r, desc) {
			return true
		}
	}

	if matches(e.glRule, desc) {
		switch dir {
		case domain.DirectionLong:
			return level.Price.LessThan(curr)
		case domain.DirectionShort:
			return level.Price.GreaterThan(curr)
		}
	}
	return false
}

func matches(r keywordRule, desc string) bool {
	return r.enabled && r.keyword != "" && strings.Contains(desc, strings.ToLower(r.keyword))
}

func (e *SignalEvaluator) passesLabelFilter(description string) bool {
	if !e.useLabelFilter {
		return true
	}
	hasLabel := strings.Contains(strings.ToLower(description), e.labelToken)
	return hasLabel == e.requireLabel
}

// fire applies recross, then crossover, then touch. Recross is checked first
// because it clears the opposite cross flag when it fires.
func (e *SignalEvaluator) fire(dir domain.Direction, level, curr, prev decimal.Decimal) (Trigger, bool) {
	if e.tracker.ConsumeRecross(dir, level, prev, curr) {
		return TriggerRecross, true
	}

	if e.crossover {
		switch dir {
		case domain.DirectionLong:
			if prev.LessThan(level.Sub(e.proximity)) && curr.GreaterThanOrEqual(level) {
				return TriggerCrossover, true
			}
		case domain.DirectionShort:
			if prev.GreaterThan(level.Add(e.proximity)) && curr.LessThanOrEqual(level) {
				return TriggerCrossover, true
			}
		}
	}

	if e.touch {
		lo, hi := level.Sub(e.proximity), level.Add(e.proximity)
		if curr.GreaterThanOrEqual(lo) && curr.LessThanOrEqual(hi) {
			return TriggerTouch, true
		}
	}
	return "", false
}
