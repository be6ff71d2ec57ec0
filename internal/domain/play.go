// Package domain defines the core types for options plays: the Play record,
// its lifecycle status, exit conditions, and the typed errors shared across
// the system.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlayStatus identifies where a play sits in its lifecycle. The string value
// doubles as the storage directory name for that status.
type PlayStatus string

const (
	StatusNew            PlayStatus = "new"
	StatusPendingOpening PlayStatus = "pending-opening"
	StatusOpen           PlayStatus = "open"
	StatusPendingClosing PlayStatus = "pending-closing"
	StatusClosed         PlayStatus = "closed"
	StatusExpired        PlayStatus = "expired"
	// StatusTemp holds OTO secondaries that are not yet active. It is outside
	// the linear chain and is only left via promotion to StatusNew.
	StatusTemp PlayStatus = "temp"
)

// AllStatuses lists every status in lifecycle order. Temp comes last so that
// scans over active plays see the linear chain first.
var AllStatuses = []PlayStatus{
	StatusNew,
	StatusPendingOpening,
	StatusOpen,
	StatusPendingClosing,
	StatusClosed,
	StatusExpired,
	StatusTemp,
}

// Valid reports whether s is a known status.
func (s PlayStatus) Valid() bool {
	switch s {
	case StatusNew, StatusPendingOpening, StatusOpen, StatusPendingClosing,
		StatusClosed, StatusExpired, StatusTemp:
		return true
	}
	return false
}

// Terminal reports whether a play in this status is finished. Terminal plays
// are retained for audit but never transitioned again.
func (s PlayStatus) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// TradeType is the option contract type.
type TradeType string

const (
	TradeTypeCall TradeType = "CALL"
	TradeTypePut  TradeType = "PUT"
)

// PositionSide distinguishes long (bought) from short (written) plays.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// PlayClass describes how a play relates to other plays.
//
//   - SIMPLE: independent.
//   - PRIMARY: the trigger of an OCO group or an OTO pair.
//   - OCO: filling this play cancels its siblings.
//   - OTO: inert in temp until its trigger play closes.
type PlayClass string

const (
	ClassSimple  PlayClass = "SIMPLE"
	ClassPrimary PlayClass = "PRIMARY"
	ClassOCO     PlayClass = "OCO"
	ClassOTO     PlayClass = "OTO"
)

// OrderType is the broker order type used for entries and exits.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// SLType controls what kind of closing order a stop-loss trigger submits:
// STOP submits a market order on breach, LIMIT a resting limit order.
type SLType string

const (
	SLTypeStop  SLType = "STOP"
	SLTypeLimit SLType = "LIMIT"
)

// OrderState is the normalized broker-side status of a single order.
type OrderState string

const (
	OrderStateNew       OrderState = "new"
	OrderStateAccepted  OrderState = "accepted"
	OrderStatePartial   OrderState = "partially_filled"
	OrderStateFilled    OrderState = "filled"
	OrderStateCancelled OrderState = "cancelled"
	OrderStateExpired   OrderState = "expired"
	OrderStateRejected  OrderState = "rejected"
)

// Terminal reports whether the order can no longer fill.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateExpired, OrderStateRejected:
		return true
	}
	return false
}

// Live reports whether the order is outstanding at the broker.
func (s OrderState) Live() bool {
	return s != "" && !s.Terminal()
}

// EntryPoint configures how a play enters the market.
type EntryPoint struct {
	TriggerPrice float64   `json:"trigger_price"`
	OrderType    OrderType `json:"order_type"`
}

// ExitConditions is a set of independently optional exit triggers evaluated
// with OR semantics. Absent fields mean the condition is not configured, not
// that its threshold is zero.
type ExitConditions struct {
	// SharePrice triggers when the underlying crosses this absolute price.
	SharePrice *float64 `json:"share_price,omitempty"`
	// PremiumPct triggers when the option premium has moved this percentage
	// from the recorded entry premium.
	PremiumPct *float64 `json:"premium_pct,omitempty"`
	// StockPct triggers when the underlying has moved this percentage from
	// the recorded entry stock price.
	StockPct *float64 `json:"stock_pct,omitempty"`

	OrderType OrderType `json:"order_type"`
	// SLType is set on stop-loss conditions only.
	SLType SLType `json:"sl_type,omitempty"`
}

// Configured reports whether at least one condition is set.
func (c *ExitConditions) Configured() bool {
	return c != nil && (c.SharePrice != nil || c.PremiumPct != nil || c.StockPct != nil)
}

// StatusEnvelope carries every field that mutates during the play lifecycle.
// Classification fields on Play itself are immutable after creation.
type StatusEnvelope struct {
	PlayStatus PlayStatus `json:"play_status"`

	OrderID     string     `json:"order_id,omitempty"`
	OrderStatus OrderState `json:"order_status,omitempty"`

	ClosingOrderID     string     `json:"closing_order_id,omitempty"`
	ClosingOrderStatus OrderState `json:"closing_order_status,omitempty"`

	ContingencyOrderID     string     `json:"contingency_order_id,omitempty"`
	ContingencyOrderStatus OrderState `json:"contingency_order_status,omitempty"`

	PositionExists      bool      `json:"position_exists"`
	ConditionalsHandled bool      `json:"conditionals_handled"`
	LastChecked         time.Time `json:"last_checked,omitzero"`
}

// LiveOrders counts outstanding entry/closing orders. The state machine
// maintains the invariant that this never exceeds one.
func (e *StatusEnvelope) LiveOrders() int {
	n := 0
	if e.OrderStatus.Live() {
		n++
	}
	if e.ClosingOrderStatus.Live() {
		n++
	}
	return n
}

// Play is one tracked options position through its lifecycle.
type Play struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Symbol         string       `json:"symbol"`
	TradeType      TradeType    `json:"trade_type"`
	StrikePrice    float64      `json:"strike_price"`
	ExpirationDate time.Time    `json:"expiration_date"`
	Contracts      int          `json:"contracts"`
	PositionSide   PositionSide `json:"position_side"`
	PlayClass      PlayClass    `json:"play_class"`

	Entry      EntryPoint      `json:"entry_point"`
	TakeProfit *ExitConditions `json:"take_profit,omitempty"`
	StopLoss   *ExitConditions `json:"stop_loss,omitempty"`

	// SiblingIDs names the OCO siblings to cancel when this play fills.
	SiblingIDs []string `json:"sibling_ids,omitempty"`
	// TriggerID names the play whose close promotes this OTO secondary.
	TriggerID string `json:"trigger_id,omitempty"`

	Status StatusEnvelope `json:"status"`

	// Snapshots recorded when the entry order fills. Percentage-based exit
	// conditions are skipped while these are absent.
	EntryPremium    *float64 `json:"entry_premium,omitempty"`
	EntryStockPrice *float64 `json:"entry_stock_price,omitempty"`

	CreationDate time.Time `json:"creation_date"`
	Creator      string    `json:"creator,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
}

// NewPlay creates a play in status NEW (or TEMP for OTO secondaries) with a
// fresh ID and creation timestamp.
func NewPlay(name, symbol string, tradeType TradeType, strike float64, expiration time.Time, contracts int, side PositionSide, class PlayClass) *Play {
	status := StatusNew
	if class == ClassOTO {
		status = StatusTemp
	}
	return &Play{
		ID:             uuid.NewString(),
		Name:           name,
		Symbol:         symbol,
		TradeType:      tradeType,
		StrikePrice:    strike,
		ExpirationDate: expiration,
		Contracts:      contracts,
		PositionSide:   side,
		PlayClass:      class,
		Status:         StatusEnvelope{PlayStatus: status},
		CreationDate:   time.Now().UTC(),
	}
}

// RequiredBuyingPower returns the capital a short play commits:
// strike × 100 × contracts. For cash-secured short puts this equals the
// notional exposure.
func (p *Play) RequiredBuyingPower() float64 {
	return p.StrikePrice * 100 * float64(p.Contracts)
}

// Expired reports whether the play's expiration day has fully passed.
func (p *Play) Expired(now time.Time) bool {
	y, m, d := p.ExpirationDate.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return !now.UTC().Before(cutoff)
}

// Validate checks the structural integrity of a play record. Load paths wrap
// a failure in CorruptRecordError so that damaged files are surfaced rather
// than silently propagated.
func (p *Play) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("missing id")
	case p.Name == "":
		return fmt.Errorf("missing name")
	case p.Symbol == "":
		return fmt.Errorf("missing symbol")
	case p.TradeType != TradeTypeCall && p.TradeType != TradeTypePut:
		return fmt.Errorf("invalid trade_type %q", p.TradeType)
	case p.StrikePrice <= 0:
		return fmt.Errorf("strike_price must be positive, got %v", p.StrikePrice)
	case p.Contracts <= 0:
		return fmt.Errorf("contracts must be positive, got %d", p.Contracts)
	case p.PositionSide != SideLong && p.PositionSide != SideShort:
		return fmt.Errorf("invalid position_side %q", p.PositionSide)
	case !p.Status.PlayStatus.Valid():
		return fmt.Errorf("invalid play_status %q", p.Status.PlayStatus)
	case p.ExpirationDate.IsZero():
		return fmt.Errorf("missing expiration_date")
	}
	switch p.PlayClass {
	case ClassSimple, ClassPrimary, ClassOCO, ClassOTO:
	default:
		return fmt.Errorf("invalid play_class %q", p.PlayClass)
	}
	if p.PlayClass == ClassOTO && p.TriggerID == "" {
		return fmt.Errorf("OTO play missing trigger_id")
	}
	if p.Status.LiveOrders() > 1 {
		return fmt.Errorf("play has more than one live order")
	}
	return nil
}
