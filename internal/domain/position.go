package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionFlat  Direction = "FLAT"
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign is +1 for long, -1 for short and 0 for flat.
func (d Direction) Sign() decimal.Decimal {
	switch d {
	case DirectionLong:
		return decimal.NewFromInt(1)
	case DirectionShort:
		return decimal.NewFromInt(-1)
	}
	return decimal.Zero
}

// Position is the venue's view of the open position.
type Position struct {
	Direction    Direction       `json:"direction"`
	Quantity     int             `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

func (p Position) IsFlat() bool {
	return p.Direction == DirectionFlat || p.Quantity == 0
}

type LegID string

const (
	LegScalp  LegID = "C1"
	LegRunner LegID = "C2"
)

type Role string

const (
	RoleStop   Role = "Stop"
	RoleTarget Role = "Target"
)

// ExitLeg is one working stop or target order protecting part of the position.
type ExitLeg struct {
	Leg      LegID           `json:"leg"`
	Role     Role            `json:"role"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	OrderID  string          `json:"order_id"`
	Retries  int             `json:"retries"`
}

type OrderState string

const (
	OrderSubmitted       OrderState = "Submitted"
	OrderWorking         OrderState = "Working"
	OrderPartiallyFilled OrderState = "PartiallyFilled"
	OrderFilled          OrderState = "Filled"
	OrderCancelled       OrderState = "Cancelled"
	OrderRejected        OrderState = "Rejected"
)

// OrderUpdate is an asynchronous state notification from the venue.
type OrderUpdate struct {
	OrderID        string          `json:"order_id"`
	Tag            string          `json:"tag"`
	FilledQuantity int             `json:"filled_quantity"`
	FillPrice      decimal.Decimal `json:"fill_price"`
	State          OrderState      `json:"state"`
	Time           time.Time       `json:"time"`
	Reason         string          `json:"reason,omitempty"`
}

type EntryRequest struct {
	Direction Direction
	Quantity  int
	SignalTag string
}

// ExitRequest places or replaces one exit leg. A request whose Tag matches a
// working order supersedes that order.
type ExitRequest struct {
	Leg             LegID
	Role            Role
	Direction       Direction // direction of the position being protected
	Price           decimal.Decimal
	Quantity        int
	Tag             string
	ParentSignalTag string
}

// SignalRecord is a consumed entry signal, kept for the journal.
type SignalRecord struct {
	Time        time.Time       `json:"time"`
	Direction   Direction       `json:"direction"`
	LevelPrice  decimal.Decimal `json:"level_price"`
	Description string          `json:"description"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Quantity    int             `json:"quantity"`
}

// DailyPnL is the risk envelope state for one trading date.
type DailyPnL struct {
	TradingDate  time.Time       `json:"trading_date"`
	Realized     decimal.Decimal `json:"realized"`
	Unrealized   decimal.Decimal `json:"unrealized"`
	LimitReached bool            `json:"limit_reached"`
}

// Total is realized plus unrealized.
func (d DailyPnL) Total() decimal.Decimal {
	return d.Realized.Add(d.Unrealized)
}
