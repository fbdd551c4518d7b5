package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

const FlattenTag = "Emergency"

// EntryTag is the parent signal tag for an entry in dir.
func EntryTag(dir domain.Direction) string {
	if dir == domain.DirectionShort {
		return "EntryShort"
	}
	return "EntryLong"
}

// ExitTag names one exit order, e.g. C2_Stop.
func ExitTag(leg domain.LegID, role domain.Role) string {
	return string(leg) + "_" + string(role)
}

// OrderExecutor sends requests to the venue and counts them.
type OrderExecutor struct {
	venue   domain.Venue
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewOrderExecutor(venue domain.Venue, m *metrics.Metrics, logger *zap.Logger) *OrderExecutor {
	return &OrderExecutor{
		venue:   venue,
		metrics: m,
		logger:  logger,
	}
}

func (e *OrderExecutor) Enter(ctx context.Context, dir domain.Direction, quantity int) (string, error) {
	if dir != domain.DirectionLong && dir != domain.DirectionShort {
		return "", fmt.Errorf("invalid entry direction: %s", dir)
	}
	tag := EntryTag(dir)
	id, err := e.venue.SubmitEntry(ctx, domain.EntryRequest{
		Direction: dir,
		Quantity:  quantity,
		SignalTag: tag,
	})
	if err != nil {
		return "", fmt.Errorf("submit entry %s: %w", tag, err)
	}
	e.metrics.Order("entry", tag)
	e.logger.Info("Entry submitted",
		zap.String("direction", string(dir)),
		zap.Int("quantity", quantity),
		zap.String("order_id", id))
	return id, nil
}

// PlaceExit submits a stop or target for one leg. A previous order with the
// same tag is superseded by the venue.
func (e *OrderExecutor) PlaceExit(ctx context.Context, dir domain.Direction, leg domain.ExitLeg) (string, error) {
	tag := ExitTag(leg.Leg, leg.Role)
	id, err := e.venue.SubmitExit(ctx, domain.ExitRequest{
		Leg:             leg.Leg,
		Role:            leg.Role,
		Direction:       dir,
		Price:           leg.Price,
		Quantity:        leg.Quantity,
		Tag:             tag,
		ParentSignalTag: EntryTag(dir),
	})
	if err != nil {
		return "", fmt.Errorf("submit exit %s: %w", tag, err)
	}
	e.metrics.Order("exit", tag)
	e.logger.Debug("Exit submitted",
		zap.String("tag", tag),
		zap.String("price", leg.Price.String()),
		zap.String("order_id", id))
	return id, nil
}

func (e *OrderExecutor) Flatten(ctx context.Context, reason string) error {
	e.metrics.Flatten(reason)
	e.logger.Warn("Flattening position", zap.String("reason", reason))
	if err := e.venue.Flatten(ctx, reason); err != nil {
		return fmt.Errorf("flatten (%s): %w", reason, err)
	}
	return nil
}
