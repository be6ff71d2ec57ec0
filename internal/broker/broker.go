// Package broker defines the Broker and MarketData interfaces the play
// lifecycle depends on, and provides an Alpaca-backed implementation plus an
// in-memory simulator for tests and paper mode.
package broker

import (
	"context"

	"playtrader/internal/domain"
)

// OrderLeg distinguishes the entry order from the closing order of a play.
type OrderLeg string

const (
	LegOpen  OrderLeg = "open"
	LegClose OrderLeg = "close"
)

// OrderSpec describes the order to submit for a play leg. LimitPrice is
// only consulted for limit orders.
type OrderSpec struct {
	Leg        OrderLeg
	Type       domain.OrderType
	LimitPrice float64
}

// Account is a snapshot of the account's financial metrics.
type Account struct {
	BuyingPower float64
	Equity      float64
}

// Quote is a market snapshot for an option play: the underlying price and
// the current option premium.
type Quote struct {
	UnderlyingPrice float64
	OptionPremium   float64
}

// Broker abstracts brokerage operations for order execution and account
// lookups. Implementations are expected to submit idempotently-identified
// orders so a retry after an ambiguous failure does not duplicate.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder submits one leg of a play and returns the broker order ID.
	SubmitOrder(ctx context.Context, play *domain.Play, spec OrderSpec) (string, error)

	// GetOrderStatus returns the normalized status of an order.
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderState, error)

	// CancelOrder requests cancellation of an open order by its ID.
	// Cancelling an already-terminal order is not an error.
	CancelOrder(ctx context.Context, orderID string) error

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*Account, error)
}

// MarketData supplies quotes for condition evaluation.
type MarketData interface {
	// GetQuote returns the current underlying price and option premium for
	// the given underlying symbol and option contract symbol.
	GetQuote(ctx context.Context, underlying, contract string) (*Quote, error)
}
