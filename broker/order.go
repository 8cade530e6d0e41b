package broker

import (
	"errors"
	"fmt"
	"time"
)

var ErrOrderTerminal = errors.New("order already terminal")

// OrderStatus is a closed set: Pending, Filled, PartiallyFilled, Rejected,
// Canceled. The unexported marker method keeps other packages from adding
// members.
type OrderStatus interface {
	orderStatus()
	String() string
	Terminal() bool
}

type Pending struct{}

type Filled struct {
	Qty   float64
	Price float64
	At    time.Time
}

// PartiallyFilled is terminal: the unfilled remainder is dropped, not
// left working.
type PartiallyFilled struct {
	Qty   float64
	Price float64
	At    time.Time
}

type Rejected struct {
	Reason string
}

type Canceled struct {
	At time.Time
}

func (Pending) orderStatus()         {}
func (Filled) orderStatus()          {}
func (PartiallyFilled) orderStatus() {}
func (Rejected) orderStatus()        {}
func (Canceled) orderStatus()        {}

func (Pending) String() string         { return "pending" }
func (Filled) String() string          { return "filled" }
func (PartiallyFilled) String() string { return "partially_filled" }
func (Rejected) String() string        { return "rejected" }
func (Canceled) String() string        { return "canceled" }

func (Pending) Terminal() bool         { return false }
func (Filled) Terminal() bool          { return true }
func (PartiallyFilled) Terminal() bool { return true }
func (Rejected) Terminal() bool        { return true }
func (Canceled) Terminal() bool        { return true }

// Order is a market order and its lifecycle state. The status can only be
// changed through Settle, which refuses once the order is terminal.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Qty        float64
	CreatedAt  time.Time
	// SignalTime is the timestamp of the signal that produced the order,
	// zero for manual orders.
	SignalTime time.Time

	status OrderStatus
}

func NewOrder(id string, req MarketOrderRequest, createdAt time.Time) Order {
	return Order{
		ID:         id,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		CreatedAt:  createdAt,
		SignalTime: req.SignalTime,
		status:     Pending{},
	}
}

func (o Order) Status() OrderStatus {
	if o.status == nil {
		return Pending{}
	}
	return o.status
}

func (o Order) Terminal() bool { return o.Status().Terminal() }

// Settle moves a pending order to next. Settling a terminal order, or
// settling back to Pending, fails with ErrOrderTerminal.
func (o *Order) Settle(next OrderStatus) error {
	if o.Terminal() {
		return fmt.Errorf("settle %s -> %s: %w", o.Status(), next, ErrOrderTerminal)
	}
	if next == nil || !next.Terminal() {
		return fmt.Errorf("settle %s: target %v is not terminal: %w", o.ID, next, ErrOrderTerminal)
	}
	o.status = next
	return nil
}

// FilledQty is zero unless the order (partially) filled.
func (o Order) FilledQty() float64 {
	switch s := o.Status().(type) {
	case Filled:
		return s.Qty
	case PartiallyFilled:
		return s.Qty
	}
	return 0
}

// FilledPrice is the average fill price, zero if nothing filled.
func (o Order) FilledPrice() float64 {
	switch s := o.Status().(type) {
	case Filled:
		return s.Price
	case PartiallyFilled:
		return s.Price
	}
	return 0
}

// FilledAt is the fill time, zero if nothing filled.
func (o Order) FilledAt() time.Time {
	switch s := o.Status().(type) {
	case Filled:
		return s.At
	case PartiallyFilled:
		return s.At
	}
	return time.Time{}
}
