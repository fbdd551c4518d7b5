package usecase

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"go.uber.org/zap"
)

// LevelRegistry holds the session's price levels in annotation order.
type LevelRegistry struct {
	suffixMarkers []string
	labelPrefix   string
	logger        *zap.Logger

	mu     sync.RWMutex
	levels []domain.PriceLevel
}

func NewLevelRegistry(cfg config.LevelsConfig, logger *zap.Logger) *LevelRegistry {
	return &LevelRegistry{
		suffixMarkers: cfg.SuffixMarkers,
		labelPrefix:   cfg.LabelPrefix,
		logger:        logger,
	}
}

// Refresh rebuilds the level set from raw annotations and swaps it in as a
// whole. Annotations that cannot be extracted are logged and skipped.
func (r *LevelRegistry) Refresh(annotations []domain.Annotation) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(annotations))
	seen := make(map[string]bool, len(annotations))

	for i, a := range annotations {
		level, err := r.extract(a)
		if err != nil {
			r.logger.Warn("Skipping annotation", zap.Int("index", i), zap.Error(err))
			continue
		}
		key := level.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		levels = append(levels, level)
	}

	r.mu.Lock()
	r.levels = levels
	r.mu.Unlock()

	if len(levels) > 0 {
		r.logger.Info("Loaded price levels", zap.Int("count", len(levels)))
	}
	return r.Levels()
}

// Levels returns a copy of the current level set.
func (r *LevelRegistry) Levels() []domain.PriceLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PriceLevel, len(r.levels))
	copy(out, r.levels)
	return out
}

func (r *LevelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.levels)
}

// Describe returns the description of the level at price, if registered.
func (r *LevelRegistry) Describe(price decimal.Decimal) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.levels {
		if l.Price.Equal(price) {
			return l.Description, true
		}
	}
	return "", false
}

// extract converts one annotation into a level. The collaborator is outside
// our control, so a panic from its accessors is reported as an error.
func (r *LevelRegistry) extract(a domain.Annotation) (level domain.PriceLevel, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("annotation accessor panicked: %v", rec)
		}
	}()

	if a == nil {
		return level, fmt.Errorf("nil annotation")
	}
	price := a.AnchorPrice()
	if !price.IsPositive() {
		return level, fmt.Errorf("unusable anchor price %s", price)
	}
	tag := a.Tag()
	if tag == "" {
		return level, fmt.Errorf("empty tag at %s", price)
	}
	return domain.PriceLevel{Price: price, Description: r.describe(tag)}, nil
}

func (r *LevelRegistry) describe(tag string) string {
	description := tag
	for _, marker := range r.suffixMarkers {
		if marker != "" && strings.Contains(tag, marker) {
			description = strings.TrimSpace(strings.SplitN(tag, "|", 2)[0])
			break
		}
	}
	if r.labelPrefix != "" && strings.HasPrefix(description, r.labelPrefix) {
		description = strings.TrimSpace(strings.TrimPrefix(description, r.labelPrefix))
	}
	return description
}
