package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a horizontal price the strategy trades against.
type PriceLevel struct {
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// Key returns the canonical map key for the level price.
func (l PriceLevel) Key() string {
	return LevelKey(l.Price)
}

// LevelKey normalizes a price so that 100, 100.0 and 100.00 share one key.
func LevelKey(price decimal.Decimal) string {
	return price.String()
}

// Annotation is the narrow capability a charting collaborator must expose for
// each horizontal line it draws.
type Annotation interface {
	AnchorPrice() decimal.Decimal
	Tag() string
}

// StoredAnnotation is an annotation persisted by the annotation source. It
// satisfies Annotation.
type StoredAnnotation struct {
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Text      string          `json:"tag"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a *StoredAnnotation) AnchorPrice() decimal.Decimal { return a.Price }
func (a *StoredAnnotation) Tag() string                  { return a.Text }

// CrossState is the directional crossing memory kept for a single level.
type CrossState struct {
	CrossedAbove  bool      `json:"crossed_above"`
	CrossedBelow  bool      `json:"crossed_below"`
	LastCrossTime time.Time `json:"last_cross_time"`
}

// Bar is one price observation from the time-series provider.
type Bar struct {
	Time  time.Time       `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}
