package broker

import (
	"context"
	"fmt"
	"sync"

	"playtrader/internal/domain"
)

// Compile-time interface checks.
var _ Broker = (*SimulatorBroker)(nil)
var _ MarketData = (*SimulatorBroker)(nil)

// SimulatorBroker implements Broker and MarketData in memory for tests and
// paper mode. Orders sit in state "new" until the test fills, cancels, or
// expires them; quotes are set explicitly per underlying.
type SimulatorBroker struct {
	mu sync.Mutex

	account Account
	nextID  int
	orders  map[string]domain.OrderState
	quotes  map[string]Quote

	// AccountErr, QuoteErr, and SubmitErr, when set, are returned by
	// GetAccount, GetQuote, and SubmitOrder to exercise failure paths.
	AccountErr error
	QuoteErr   error
	SubmitErr  error

	// EquityUnavailable zeroes equity in GetAccount responses to exercise
	// the risk gate's buying-power fallback.
	EquityUnavailable bool
}

// NewSimulatorBroker creates a SimulatorBroker with the given account state.
func NewSimulatorBroker(buyingPower, equity float64) *SimulatorBroker {
	return &SimulatorBroker{
		account: Account{BuyingPower: buyingPower, Equity: equity},
		orders:  make(map[string]domain.OrderState),
		quotes:  make(map[string]Quote),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder records the order in state "new" and returns a synthetic ID.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, play *domain.Play, spec OrderSpec) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubmitErr != nil {
		return "", b.SubmitErr
	}
	b.nextID++
	id := fmt.Sprintf("sim-%s-%d", spec.Leg, b.nextID)
	b.orders[id] = domain.OrderStateNew
	_ = play
	return id, nil
}

// GetOrderStatus returns the recorded state of an order.
func (b *SimulatorBroker) GetOrderStatus(_ context.Context, orderID string) (domain.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.orders[orderID]
	if !ok {
		return "", fmt.Errorf("unknown order %s", orderID)
	}
	return state, nil
}

// CancelOrder marks a live order cancelled; terminal orders are untouched.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.orders[orderID]; ok && state.Live() {
		b.orders[orderID] = domain.OrderStateCancelled
	}
	return nil
}

// GetAccount returns the simulated account snapshot.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.AccountErr != nil {
		return nil, b.AccountErr
	}
	acct := b.account
	if b.EquityUnavailable {
		acct.Equity = 0
	}
	return &acct, nil
}

// GetQuote returns the quote configured for the underlying symbol.
func (b *SimulatorBroker) GetQuote(_ context.Context, underlying, _ string) (*Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.QuoteErr != nil {
		return nil, b.QuoteErr
	}
	q, ok := b.quotes[underlying]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", underlying)
	}
	return &q, nil
}

// SetQuote installs the quote returned for an underlying symbol.
func (b *SimulatorBroker) SetQuote(underlying string, q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[underlying] = q
}

// SetOrderState forces an order into the given state, simulating broker
// fills, cancels, and expirations.
func (b *SimulatorBroker) SetOrderState(orderID string, state domain.OrderState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[orderID] = state
}

// SetAccount replaces the simulated account snapshot.
func (b *SimulatorBroker) SetAccount(buyingPower, equity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = Account{BuyingPower: buyingPower, Equity: equity}
}

// OrderState reports the recorded state of an order for test assertions.
func (b *SimulatorBroker) OrderState(orderID string) (domain.OrderState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.orders[orderID]
	return state, ok
}
