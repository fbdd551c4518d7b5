package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/infrastructure/metrics"
	"github.com/vitos/level_cross_trader/internal/usecase"
	"go.uber.org/zap"
)

func TestOrderExecutor_Enter(t *testing.T) {
	venue := newFakeVenue()
	executor := usecase.NewOrderExecutor(venue, metrics.New(), zap.NewNop())
	ctx := context.Background()

	id, err := executor.Enter(ctx, domain.DirectionShort, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "EntryShort", venue.entries[0].SignalTag)

	_, err = executor.Enter(ctx, domain.DirectionFlat, 1)
	assert.Error(t, err)
	assert.Len(t, venue.entries, 1)
}

func TestOrderExecutor_PlaceExit(t *testing.T) {
	venue := newFakeVenue()
	executor := usecase.NewOrderExecutor(venue, nil, zap.NewNop())
	ctx := context.Background()

	leg := domain.ExitLeg{Leg: domain.LegRunner, Role: domain.RoleStop, Price: dec("94.5"), Quantity: 1}
	id, err := executor.PlaceExit(ctx, domain.DirectionLong, leg)
	require.NoError(t, err)
	assert.Equal(t, venue.lastExitID("C2_Stop"), id)

	req := venue.exits[0]
	assert.Equal(t, "C2_Stop", req.Tag)
	assert.Equal(t, "EntryLong", req.ParentSignalTag)
	assert.Equal(t, domain.DirectionLong, req.Direction)

	venue.exitErr = errors.New("rejected by gateway")
	_, err = executor.PlaceExit(ctx, domain.DirectionLong, leg)
	assert.ErrorContains(t, err, "C2_Stop")
}

func TestOrderExecutor_Flatten(t *testing.T) {
	venue := newFakeVenue()
	executor := usecase.NewOrderExecutor(venue, nil, zap.NewNop())

	require.NoError(t, executor.Flatten(context.Background(), "manual"))
	assert.Equal(t, []string{"manual"}, venue.flattens)
}

func TestTags(t *testing.T) {
	assert.Equal(t, "EntryLong", usecase.EntryTag(domain.DirectionLong))
	assert.Equal(t, "EntryShort", usecase.EntryTag(domain.DirectionShort))
	assert.Equal(t, "C1_Target", usecase.ExitTag(domain.LegScalp, domain.RoleTarget))
}
