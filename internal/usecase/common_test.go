package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/config"
	"github.com/vitos/level_cross_trader/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2024-03-11 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

// testConfig is the default configuration with the window and warm-up off.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Window.Enabled = false
	cfg.BarsRequired = 0
	return cfg
}

type level struct {
	price string
	tag   string
}

func (l level) AnchorPrice() decimal.Decimal { return dec(l.price) }
func (l level) Tag() string                  { return l.tag }

func annotations(ls ...level) []domain.Annotation {
	out := make([]domain.Annotation, len(ls))
	for i, l := range ls {
		out[i] = l
	}
	return out
}

type fakeSource struct {
	anns  []domain.Annotation
	err   error
	calls int
	panic bool
}

func (f *fakeSource) ListAnnotations(ctx context.Context) ([]domain.Annotation, error) {
	f.calls++
	if f.panic {
		panic("chart layer gone")
	}
	return f.anns, f.err
}

// fakeVenue records every request; the test drives fills by hand.
type fakeVenue struct {
	mu sync.Mutex

	pos      domain.Position
	realized decimal.Decimal
	posErr   error
	exitErr  error
	entryErr error
	// flattenFailures is the number of upcoming Flatten calls that fail.
	flattenFailures int

	nextID   int
	entries  []domain.EntryRequest
	entryIDs []string
	exits    []domain.ExitRequest
	exitIDs  map[string]string
	flattens []string
	updates  chan domain.OrderUpdate
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		pos:     domain.Position{Direction: domain.DirectionFlat},
		exitIDs: make(map[string]string),
		updates: make(chan domain.OrderUpdate, 16),
	}
}

func (v *fakeVenue) id() string {
	v.nextID++
	return fmt.Sprintf("ord-%d", v.nextID)
}

func (v *fakeVenue) SubmitEntry(ctx context.Context, req domain.EntryRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entryErr != nil {
		return "", v.entryErr
	}
	id := v.id()
	v.entries = append(v.entries, req)
	v.entryIDs = append(v.entryIDs, id)
	return id, nil
}

func (v *fakeVenue) SubmitExit(ctx context.Context, req domain.ExitRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.exitErr != nil {
		return "", v.exitErr
	}
	id := v.id()
	v.exits = append(v.exits, req)
	v.exitIDs[req.Tag] = id
	return id, nil
}

func (v *fakeVenue) Flatten(ctx context.Context, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flattens = append(v.flattens, reason)
	if v.flattenFailures > 0 {
		v.flattenFailures--
		return errors.New("flatten refused")
	}
	v.pos = domain.Position{Direction: domain.DirectionFlat}
	return nil
}

func (v *fakeVenue) GetPosition(ctx context.Context) (domain.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos, v.posErr
}

func (v *fakeVenue) RealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.realized, nil
}

func (v *fakeVenue) Updates() <-chan domain.OrderUpdate {
	return v.updates
}

func (v *fakeVenue) setPosition(dir domain.Direction, qty int, avg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = domain.Position{Direction: dir, Quantity: qty, AveragePrice: dec(avg)}
}

// exitsFor returns every request placed under tag, oldest first.
func (v *fakeVenue) exitsFor(tag string) []domain.ExitRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []domain.ExitRequest
	for _, e := range v.exits {
		if e.Tag == tag {
			out = append(out, e)
		}
	}
	return out
}

func (v *fakeVenue) lastExitID(tag string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.exitIDs[tag]
}

type fakeJournal struct {
	mu      sync.Mutex
	signals []*domain.SignalRecord
	events  []*domain.OrderUpdate
	daily   []*domain.DailyPnL
}

func (j *fakeJournal) SaveSignal(ctx context.Context, rec *domain.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, rec)
	return nil
}

func (j *fakeJournal) ListSignals(ctx context.Context, limit int) ([]*domain.SignalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.signals, nil
}

func (j *fakeJournal) SaveOrderEvent(ctx context.Context, upd *domain.OrderUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, upd)
	return nil
}

func (j *fakeJournal) ListOrderEvents(ctx context.Context, limit int) ([]*domain.OrderUpdate, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.events, nil
}

func (j *fakeJournal) SaveDailyPnL(ctx context.Context, pnl *domain.DailyPnL) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.daily = append(j.daily, pnl)
	return nil
}

func (j *fakeJournal) GetDailyPnL(ctx context.Context, date time.Time) (*domain.DailyPnL, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.daily) - 1; i >= 0; i-- {
		if j.daily[i].TradingDate.Equal(date) {
			return j.daily[i], nil
		}
	}
	return nil, errors.New("not found")
}
