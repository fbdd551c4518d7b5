package usecase_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
	"github.com/vitos/level_cross_trader/internal/usecase"
	"go.uber.org/zap"
)

type panickyAnnotation struct{}

func (panickyAnnotation) AnchorPrice() decimal.Decimal { panic("detached drawing") }
func (panickyAnnotation) Tag() string                  { return "Support" }

func TestLevelRegistry_Refresh(t *testing.T) {
	registry := usecase.NewLevelRegistry(config.Default().Levels, zap.NewNop())

	anns := annotations(
		level{"5000.25", "Support 1|PTZDPHLine"},
		level{"5010.50", " LBL=Resistance R1 |GOLDPTZDPHLine"},
		level{"5020.00", "LBL= Pivot Bull"},
		level{"5030.00", "GL level|other|parts"},
		level{"0", "Support zero"},
		level{"-1", "Support negative"},
		level{"5040.00", ""},
		level{"5000.2500", "Duplicate price, first one wins"},
	)
	anns = append(anns, panickyAnnotation{}, nil)

	got := registry.Refresh(anns)

	want := []domain.PriceLevel{
		{Price: dec("5000.25"), Description: "Support 1"},
		{Price: dec("5010.50"), Description: "Resistance R1"},
		{Price: dec("5020.00"), Description: "Pivot Bull"},
		{Price: dec("5030.00"), Description: "GL level|other|parts"},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("Refresh() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, registry.Len())

	desc, ok := registry.Describe(dec("5010.5"))
	assert.True(t, ok)
	assert.Equal(t, "Resistance R1", desc)
}

func TestLevelRegistry_RefreshReplacesWholesale(t *testing.T) {
	registry := usecase.NewLevelRegistry(config.Default().Levels, zap.NewNop())

	registry.Refresh(annotations(level{"100", "Support"}, level{"110", "Resistance"}))
	registry.Refresh(annotations(level{"120", "Support"}))

	levels := registry.Levels()
	assert.Len(t, levels, 1)
	assert.True(t, levels[0].Price.Equal(dec("120")))

	// Callers get a copy.
	levels[0].Description = "mutated"
	assert.Equal(t, "Support", registry.Levels()[0].Description)
}
