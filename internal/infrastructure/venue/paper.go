// Package venue contains the in-process paper execution venue.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/level_cross_trader/internal/domain"
	"go.uber.org/zap"
)

var ErrNoPrice = errors.New("no market price yet")

type orderKind string

const (
	kindEntry  orderKind = "entry"
	kindStop   orderKind = "stop"
	kindLimit  orderKind = "limit"
	kindMarket orderKind = "market"
)

type order struct {
	seq       int
	id        string
	tag       string
	kind      orderKind
	leg       domain.LegID
	direction domain.Direction // entry direction, or the position direction an exit protects
	price     decimal.Decimal
	quantity  int
	state     domain.OrderState
}

// PaperVenue simulates fills against the bar stream. Market entries fill at
// the next bar's open, stops when the bar trades through them and limits when
// the bar reaches them. Exit orders of one leg are OCO. Notifications are
// queued and delivered on Updates by a pump goroutine, so callers may place
// orders from inside an update handler.
type PaperVenue struct {
	pointValue decimal.Decimal
	logger     *zap.Logger

	mu        sync.Mutex
	seq       int
	lastPrice decimal.Decimal
	hasPrice  bool
	lastTime  time.Time
	position  domain.Position
	realized  decimal.Decimal
	orders    map[string]*order
	byTag     map[string]string

	pending []domain.OrderUpdate
	notify  chan struct{}
	updates chan domain.OrderUpdate
	done    chan struct{}
	once    sync.Once
}

func NewPaperVenue(pointValue decimal.Decimal, logger *zap.Logger) *PaperVenue {
	v := &PaperVenue{
		pointValue: pointValue,
		logger:     logger,
		position:   domain.Position{Direction: domain.DirectionFlat},
		orders:     make(map[string]*order),
		byTag:      make(map[string]string),
		notify:     make(chan struct{}, 1),
		updates:    make(chan domain.OrderUpdate, 64),
		done:       make(chan struct{}),
	}
	go v.pump()
	return v
}

func (v *PaperVenue) pump() {
	defer close(v.updates)
	for {
		select {
		case <-v.done:
			return
		case <-v.notify:
		}

		v.mu.Lock()
		batch := v.pending
		v.pending = nil
		v.mu.Unlock()

		for _, upd := range batch {
			select {
			case v.updates <- upd:
			case <-v.done:
				return
			}
		}
	}
}

// Close stops delivery and closes the Updates channel.
func (v *PaperVenue) Close() {
	v.once.Do(func() { close(v.done) })
}

func (v *PaperVenue) Updates() <-chan domain.OrderUpdate {
	return v.updates
}

// emit is called with mu held.
func (v *PaperVenue) emit(o *order, state domain.OrderState, qty int, price decimal.Decimal, reason string) {
	o.state = state
	at := v.lastTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	v.pending = append(v.pending, domain.OrderUpdate{
		OrderID:        o.id,
		Tag:            o.tag,
		FilledQuantity: qty,
		FillPrice:      price,
		State:          state,
		Time:           at,
		Reason:         reason,
	})
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

func (v *PaperVenue) newOrder(tag string, kind orderKind) *order {
	v.seq++
	return &order{
		seq:   v.seq,
		id:    uuid.NewString(),
		tag:   tag,
		kind:  kind,
		state: domain.OrderSubmitted,
	}
}

func (v *PaperVenue) SubmitEntry(ctx context.Context, req domain.EntryRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	o := v.newOrder(req.SignalTag, kindEntry)
	o.direction = req.Direction
	o.quantity = req.Quantity

	if req.Quantity <= 0 || (req.Direction != domain.DirectionLong && req.Direction != domain.DirectionShort) {
		v.emit(o, domain.OrderRejected, 0, decimal.Zero, "invalid entry request")
		return o.id, nil
	}

	v.orders[o.id] = o
	v.emit(o, domain.OrderWorking, 0, decimal.Zero, "")
	v.logger.Debug("Paper entry working", zap.String("id", o.id), zap.String("direction", string(req.Direction)))
	return o.id, nil
}

// SubmitExit places a stop or target. A working order with the same tag is
// cancelled first.
func (v *PaperVenue) SubmitExit(ctx context.Context, req domain.ExitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if prevID, ok := v.byTag[req.Tag]; ok {
		if prev, ok := v.orders[prevID]; ok {
			delete(v.orders, prevID)
			v.emit(prev, domain.OrderCancelled, 0, decimal.Zero, "superseded")
		}
		delete(v.byTag, req.Tag)
	}

	kind := kindStop
	if req.Role == domain.RoleTarget {
		kind = kindLimit
	}
	o := v.newOrder(req.Tag, kind)
	o.leg = req.Leg
	o.direction = req.Direction
	o.price = req.Price
	o.quantity = req.Quantity

	if reason := v.validateExit(o); reason != "" {
		v.emit(o, domain.OrderRejected, 0, decimal.Zero, reason)
		return o.id, nil
	}

	v.orders[o.id] = o
	v.byTag[o.tag] = o.id
	v.emit(o, domain.OrderWorking, 0, decimal.Zero, "")
	return o.id, nil
}

// validateExit is called with mu held.
func (v *PaperVenue) validateExit(o *order) string {
	if o.quantity <= 0 {
		return "quantity must be positive"
	}
	if !o.price.IsPositive() {
		return "price must be positive"
	}
	if o.direction != domain.DirectionLong && o.direction != domain.DirectionShort {
		return "exit without direction"
	}
	// A stop already through the market would fill immediately.
	if o.kind == kindStop && v.hasPrice && !v.position.IsFlat() {
		if o.direction == domain.DirectionLong && o.price.GreaterThanOrEqual(v.lastPrice) {
			return fmt.Sprintf("sell stop %s at or above market %s", o.price, v.lastPrice)
		}
		if o.direction == domain.DirectionShort && o.price.LessThanOrEqual(v.lastPrice) {
			return fmt.Sprintf("buy stop %s at or below market %s", o.price, v.lastPrice)
		}
	}
	return ""
}

// Flatten closes the position at the last price and cancels every working
// order.
func (v *PaperVenue) Flatten(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.position.IsFlat() {
		if !v.hasPrice {
			return ErrNoPrice
		}
		o := v.newOrder("Emergency", kindMarket)
		qty := v.position.Quantity
		v.close(qty, v.lastPrice)
		v.emit(o, domain.OrderFilled, qty, v.lastPrice, reason)
	}
	v.cancelAll("flatten: " + reason)
	return nil
}

// cancelAll is called with mu held.
func (v *PaperVenue) cancelAll(reason string) {
	for _, o := range v.sortedOrders() {
		v.emit(o, domain.OrderCancelled, 0, decimal.Zero, reason)
	}
	v.orders = make(map[string]*order)
	v.byTag = make(map[string]string)
}

func (v *PaperVenue) sortedOrders() []*order {
	out := make([]*order, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (v *PaperVenue) GetPosition(ctx context.Context) (domain.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position, nil
}

func (v *PaperVenue) RealizedPnL(ctx context.Context) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.realized, nil
}

// OnBar advances the simulation by one bar. It must be called before the
// strategy sees the same bar.
func (v *PaperVenue) OnBar(bar domain.Bar) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastTime = bar.Time

	for _, o := range v.sortedOrders() {
		if o.kind != kindEntry {
			continue
		}
		v.open(o.direction, o.quantity, bar.Open)
		delete(v.orders, o.id)
		v.emit(o, domain.OrderFilled, o.quantity, bar.Open, "")
	}

	for _, o := range v.sortedOrders() {
		if o.kind == kindEntry || v.position.IsFlat() {
			continue
		}
		if _, live := v.orders[o.id]; !live {
			continue
		}
		price, ok := triggered(o, bar)
		if !ok {
			continue
		}
		qty := o.quantity
		if qty > v.position.Quantity {
			qty = v.position.Quantity
		}
		v.close(qty, price)
		v.remove(o)
		v.emit(o, domain.OrderFilled, qty, price, "")

		// OCO: the other side of the same leg goes away.
		for _, sib := range v.sortedOrders() {
			if sib.leg == o.leg && sib.kind != kindEntry {
				v.remove(sib)
				v.emit(sib, domain.OrderCancelled, 0, decimal.Zero, "oco")
			}
		}
	}

	if v.position.IsFlat() {
		for _, o := range v.sortedOrders() {
			if o.kind != kindEntry {
				v.remove(o)
				v.emit(o, domain.OrderCancelled, 0, decimal.Zero, "position closed")
			}
		}
	}

	v.lastPrice = bar.Close
	v.hasPrice = true
}

func (v *PaperVenue) remove(o *order) {
	delete(v.orders, o.id)
	if v.byTag[o.tag] == o.id {
		delete(v.byTag, o.tag)
	}
}

// triggered returns the fill price if the bar reaches the exit order.
func triggered(o *order, bar domain.Bar) (decimal.Decimal, bool) {
	long := o.direction == domain.DirectionLong
	switch o.kind {
	case kindStop:
		if long && bar.Low.LessThanOrEqual(o.price) {
			return decimal.Min(o.price, bar.Open), true
		}
		if !long && bar.High.GreaterThanOrEqual(o.price) {
			return decimal.Max(o.price, bar.Open), true
		}
	case kindLimit:
		if long && bar.High.GreaterThanOrEqual(o.price) {
			return decimal.Max(o.price, bar.Open), true
		}
		if !long && bar.Low.LessThanOrEqual(o.price) {
			return decimal.Min(o.price, bar.Open), true
		}
	}
	return decimal.Zero, false
}

// open adds to the position; called with mu held.
func (v *PaperVenue) open(dir domain.Direction, qty int, price decimal.Decimal) {
	pos := v.position
	if pos.IsFlat() {
		v.position = domain.Position{Direction: dir, Quantity: qty, AveragePrice: price}
		return
	}
	if pos.Direction != dir {
		closing := qty
		if closing > pos.Quantity {
			closing = pos.Quantity
		}
		v.close(closing, price)
		if rest := qty - closing; rest > 0 {
			v.position = domain.Position{Direction: dir, Quantity: rest, AveragePrice: price}
		}
		return
	}
	total := pos.Quantity + qty
	notional := pos.AveragePrice.Mul(decimal.NewFromInt(int64(pos.Quantity))).
		Add(price.Mul(decimal.NewFromInt(int64(qty))))
	v.position = domain.Position{
		Direction:    dir,
		Quantity:     total,
		AveragePrice: notional.Div(decimal.NewFromInt(int64(total))),
	}
}

// close reduces the position by qty at price and books the P&L; called with
// mu held.
func (v *PaperVenue) close(qty int, price decimal.Decimal) {
	pos := v.position
	if pos.IsFlat() || qty <= 0 {
		return
	}
	pnl := price.Sub(pos.AveragePrice).
		Mul(pos.Direction.Sign()).
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(v.pointValue)
	v.realized = v.realized.Add(pnl)

	pos.Quantity -= qty
	if pos.Quantity <= 0 {
		pos = domain.Position{Direction: domain.DirectionFlat}
	}
	v.position = pos
}
