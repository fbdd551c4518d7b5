package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Venue is the execution venue. Placement calls return a handle immediately;
// fills and other state changes arrive later on Updates.
type Venue interface {
	SubmitEntry(ctx context.Context, req EntryRequest) (string, error)
	SubmitExit(ctx context.Context, req ExitRequest) (string, error)
	Flatten(ctx context.Context, reason string) error
	GetPosition(ctx context.Context) (Position, error)
	// RealizedPnL is the cumulative closed-trade P&L in account currency.
	RealizedPnL(ctx context.Context) (decimal.Decimal, error)
	Updates() <-chan OrderUpdate
}

// BarDriven is implemented by simulated venues that fill working orders
// against the same bar stream the strategy observes.
type BarDriven interface {
	OnBar(bar Bar)
}

// AnnotationSource supplies the raw level annotations drawn by the charting
// collaborator.
type AnnotationSource interface {
	ListAnnotations(ctx context.Context) ([]Annotation, error)
}

// AnnotationRepository is the writable side used by the HTTP surface and CLI.
type AnnotationRepository interface {
	AnnotationSource
	SaveAnnotation(ctx context.Context, a *StoredAnnotation) error
	ListStoredAnnotations(ctx context.Context) ([]*StoredAnnotation, error)
	DeleteAnnotation(ctx context.Context, id string) error
}

// JournalRepository records what the strategy did. It is read by the HTTP
// surface only, never to restore state.
type JournalRepository interface {
	SaveSignal(ctx context.Context, rec *SignalRecord) error
	ListSignals(ctx context.Context, limit int) ([]*SignalRecord, error)
	SaveOrderEvent(ctx context.Context, upd *OrderUpdate) error
	ListOrderEvents(ctx context.Context, limit int) ([]*OrderUpdate, error)
	SaveDailyPnL(ctx context.Context, pnl *DailyPnL) error
	GetDailyPnL(ctx context.Context, date time.Time) (*DailyPnL, error)
}
