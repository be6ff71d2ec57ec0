// Package monitor implements the polling loop that drives plays through
// their lifecycle: it watches each status area, asks the evaluator whether a
// condition fired, asks the risk gate to approve new short submissions, and
// asks the state machine to perform transitions. Transitions are always
// durable before any order is submitted.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"playtrader/internal/broker"
	"playtrader/internal/config"
	"playtrader/internal/domain"
	"playtrader/internal/engine"
	"playtrader/internal/playstore"
	"playtrader/internal/util"
)

// Monitor is the single polling caller over a shared play store. It holds
// no durable state of its own; everything it needs to resume after a
// restart is in the store and the history log.
type Monitor struct {
	store   *playstore.Store
	machine *engine.StateMachine
	eval    *engine.Evaluator
	gate    *engine.RiskGate
	broker  broker.Broker
	md      broker.MarketData
	cfg     config.MonitoringConfig
	log     *slog.Logger

	mu sync.Mutex
	// entryAttempts counts failed entry submissions per play so the retry
	// path stays bounded by monitoring.max_retries.
	entryAttempts map[string]int

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Monitor wired with the given dependencies.
func New(store *playstore.Store, machine *engine.StateMachine, eval *engine.Evaluator,
	gate *engine.RiskGate, b broker.Broker, md broker.MarketData,
	cfg config.MonitoringConfig, log *slog.Logger) *Monitor {
	return &Monitor{
		store:         store,
		machine:       machine,
		eval:          eval,
		gate:          gate,
		broker:        b,
		md:            md,
		cfg:           cfg,
		log:           log,
		entryAttempts: make(map[string]int),
		now:           time.Now,
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		m.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass over every active status area. Errors on
// individual plays are logged and skipped; one stuck play must not stall
// the rest of the book.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.checkNew(ctx)
	m.checkPendingOpening(ctx)
	m.checkOpen(ctx)
	m.checkPendingClosing(ctx)
	m.checkClosed(ctx)
}

// loadAll loads every readable play in a status area, logging and skipping
// stale references and corrupt records.
func (m *Monitor) loadAll(status domain.PlayStatus) []*domain.Play {
	refs, err := m.store.List(status)
	if err != nil {
		m.log.Error("listing plays", "status", status, "error", err)
		return nil
	}
	var plays []*domain.Play
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		play, err := m.store.Load(ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			m.log.Warn("skipping unreadable play", "status", status, "id", ref.ID, "error", err)
			continue
		}
		plays = append(plays, play)
	}
	return plays
}

// quoteFor fetches the market snapshot for a play; nil means unavailable.
func (m *Monitor) quoteFor(ctx context.Context, play *domain.Play) *broker.Quote {
	quote, err := m.md.GetQuote(ctx, play.Symbol, broker.OCCSymbol(play))
	if err != nil {
		m.log.Warn("quote unavailable", "play", play.ID, "symbol", play.Symbol, "error", err)
		return nil
	}
	return quote
}

func (m *Monitor) stamp(play *domain.Play) {
	play.Status.LastChecked = m.now().UTC()
	if err := m.store.Put(play); err != nil {
		m.log.Warn("stamping last_checked", "play", play.ID, "error", err)
	}
}

// ---------------------------------------------------------------------------
// NEW: arm entries
// ---------------------------------------------------------------------------

func (m *Monitor) checkNew(ctx context.Context) {
	for _, play := range m.loadAll(domain.StatusNew) {
		// OCO-cancelled before ever arming; never submit.
		if play.Status.ContingencyOrderStatus.Terminal() {
			continue
		}
		if play.Expired(m.now()) {
			m.log.Warn("play expired before entry, leaving in new for review", "play", play.ID)
			continue
		}
		if m.attempts(play.ID) >= m.cfg.MaxRetries && m.cfg.MaxRetries > 0 {
			continue
		}

		quote := m.quoteFor(ctx, play)
		m.stamp(play)
		if !m.eval.EvaluateEntry(play, quote) {
			continue
		}

		if err := m.gate.Approve(ctx, play); err != nil {
			var violation *domain.RiskViolationError
			if errors.As(err, &violation) {
				m.log.Warn("entry rejected by risk gate",
					"play", play.ID, "reason", violation.Reason,
					"required", violation.Required, "limit", violation.Limit)
			} else {
				m.log.Error("risk validation failed", "play", play.ID, "error", err)
			}
			continue
		}

		// Persist the transition before the broker sees the order.
		if err := m.machine.Transition(ctx, play, domain.StatusPendingOpening); err != nil {
			m.log.Error("arming entry", "play", play.ID, "error", err)
			continue
		}
		m.submitEntry(ctx, play, quote)
	}
}

// submitEntry submits the entry order with bounded retries. If every
// attempt fails the play is returned to NEW.
func (m *Monitor) submitEntry(ctx context.Context, play *domain.Play, quote *broker.Quote) {
	spec := broker.OrderSpec{Leg: broker.LegOpen, Type: play.Entry.OrderType}
	if spec.Type == domain.OrderTypeLimit && quote != nil {
		spec.LimitPrice = quote.OptionPremium
	}

	var orderID string
	err := util.Retry(ctx, max(1, m.cfg.MaxRetries), m.cfg.RetryDelay, func() error {
		id, err := m.broker.SubmitOrder(ctx, play, spec)
		if err == nil {
			orderID = id
		}
		return err
	}, func(attempt int, err error) {
		m.log.Warn("entry submission retry", "play", play.ID, "attempt", attempt, "error", err)
	})
	if err != nil {
		m.log.Error("entry submission failed, returning play to new", "play", play.ID, "error", err)
		m.bumpAttempts(play.ID)
		if terr := m.machine.Transition(ctx, play, domain.StatusNew); terr != nil {
			m.log.Error("returning play to new", "play", play.ID, "error", terr)
		}
		return
	}

	play.Status.OrderID = orderID
	play.Status.OrderStatus = domain.OrderStateNew
	if err := m.store.Put(play); err != nil {
		m.log.Error("recording entry order id", "play", play.ID, "order", orderID, "error", err)
	}
	m.log.Info("entry order submitted", "play", play.ID, "order", orderID)
}

// ---------------------------------------------------------------------------
// PENDING_OPENING: reconcile entry orders
// ---------------------------------------------------------------------------

func (m *Monitor) checkPendingOpening(ctx context.Context) {
	for _, play := range m.loadAll(domain.StatusPendingOpening) {
		// Expiration trumps pending state: once expiry is recorded a late
		// fill report cannot resurrect the play.
		if play.Expired(m.now()) {
			m.expirePending(ctx, play)
			continue
		}

		if play.Status.OrderID == "" {
			// Transition was durable but the submission never landed
			// (crash between move and submit). Re-drive it.
			m.submitEntry(ctx, play, m.quoteFor(ctx, play))
			continue
		}

		state, err := m.broker.GetOrderStatus(ctx, play.Status.OrderID)
		if err != nil {
			m.log.Warn("entry order status unavailable", "play", play.ID, "order", play.Status.OrderID, "error", err)
			continue
		}
		play.Status.OrderStatus = state

		switch {
		case state == domain.OrderStateFilled:
			play.Status.PositionExists = true
			if quote := m.quoteFor(ctx, play); quote != nil {
				premium, stock := quote.OptionPremium, quote.UnderlyingPrice
				play.EntryPremium = &premium
				play.EntryStockPrice = &stock
			}
			if err := m.machine.Transition(ctx, play, domain.StatusOpen); err != nil {
				m.log.Error("opening play", "play", play.ID, "error", err)
			}
		case state.Terminal():
			// Cancelled, expired, or rejected unfilled: back to NEW for a
			// bounded re-arm.
			m.bumpAttempts(play.ID)
			play.Status.OrderID = ""
			if err := m.machine.Transition(ctx, play, domain.StatusNew); err != nil {
				m.log.Error("returning unfilled play to new", "play", play.ID, "error", err)
			}
		default:
			m.stamp(play)
		}
	}
}

func (m *Monitor) expirePending(ctx context.Context, play *domain.Play) {
	if play.Status.OrderStatus.Live() {
		if err := m.broker.CancelOrder(ctx, play.Status.OrderID); err != nil {
			m.log.Warn("cancelling order on expired play", "play", play.ID, "error", err)
		}
		play.Status.OrderStatus = domain.OrderStateCancelled
	}
	if err := m.machine.Transition(ctx, play, domain.StatusExpired); err != nil {
		m.log.Error("expiring play", "play", play.ID, "error", err)
	}
}

// ---------------------------------------------------------------------------
// OPEN: contingencies and exits
// ---------------------------------------------------------------------------

func (m *Monitor) checkOpen(ctx context.Context) {
	for _, play := range m.loadAll(domain.StatusOpen) {
		if play.Expired(m.now()) {
			m.expireOpen(ctx, play)
			continue
		}

		// Re-drive OCO sibling cancellation left unfinished by a crash.
		if len(play.SiblingIDs) > 0 && !play.Status.ConditionalsHandled {
			if err := m.machine.HandleOCOSiblings(ctx, play); err != nil {
				m.log.Error("re-running OCO sibling handling", "play", play.ID, "error", err)
			}
		}

		quote := m.quoteFor(ctx, play)
		m.stamp(play)
		if quote == nil {
			continue
		}

		// Stop-loss wins when both fire on the same snapshot.
		ev := m.eval.EvaluateStopLoss(play, quote)
		kind := "stop_loss"
		if !ev.Triggered {
			ev = m.eval.EvaluateTakeProfit(play, quote)
			kind = "take_profit"
		}
		if !ev.Triggered {
			continue
		}
		m.log.Info("exit condition fired",
			"play", play.ID, "kind", kind, "condition", ev.Condition, "order_type", ev.OrderType)

		if err := m.machine.Transition(ctx, play, domain.StatusPendingClosing); err != nil {
			m.log.Error("arming exit", "play", play.ID, "error", err)
			continue
		}
		m.submitClose(ctx, play, ev)
	}
}

func (m *Monitor) expireOpen(ctx context.Context, play *domain.Play) {
	if play.Status.ClosingOrderStatus.Live() {
		if err := m.broker.CancelOrder(ctx, play.Status.ClosingOrderID); err != nil {
			m.log.Warn("cancelling closing order on expired play", "play", play.ID, "error", err)
		}
		play.Status.ClosingOrderStatus = domain.OrderStateCancelled
	}
	if err := m.machine.Transition(ctx, play, domain.StatusExpired); err != nil {
		m.log.Error("expiring play", "play", play.ID, "error", err)
	}
}

func (m *Monitor) submitClose(ctx context.Context, play *domain.Play, ev engine.Evaluation) {
	spec := broker.OrderSpec{Leg: broker.LegClose, Type: ev.OrderType, LimitPrice: ev.LimitPrice}

	var orderID string
	err := util.Retry(ctx, max(1, m.cfg.MaxRetries), m.cfg.RetryDelay, func() error {
		id, err := m.broker.SubmitOrder(ctx, play, spec)
		if err == nil {
			orderID = id
		}
		return err
	}, func(attempt int, err error) {
		m.log.Warn("close submission retry", "play", play.ID, "attempt", attempt, "error", err)
	})
	if err != nil {
		m.log.Error("close submission failed, reopening play", "play", play.ID, "error", err)
		if terr := m.machine.Transition(ctx, play, domain.StatusOpen); terr != nil {
			m.log.Error("reopening play", "play", play.ID, "error", terr)
		}
		return
	}

	play.Status.ClosingOrderID = orderID
	play.Status.ClosingOrderStatus = domain.OrderStateNew
	if err := m.store.Put(play); err != nil {
		m.log.Error("recording closing order id", "play", play.ID, "order", orderID, "error", err)
	}
	m.log.Info("closing order submitted", "play", play.ID, "order", orderID)
}

// ---------------------------------------------------------------------------
// PENDING_CLOSING: reconcile closing orders
// ---------------------------------------------------------------------------

func (m *Monitor) checkPendingClosing(ctx context.Context) {
	for _, play := range m.loadAll(domain.StatusPendingClosing) {
		if play.Status.ClosingOrderID == "" {
			if err := m.machine.Transition(ctx, play, domain.StatusOpen); err != nil {
				m.log.Error("reopening play without closing order", "play", play.ID, "error", err)
			}
			continue
		}

		state, err := m.broker.GetOrderStatus(ctx, play.Status.ClosingOrderID)
		if err != nil {
			m.log.Warn("closing order status unavailable", "play", play.ID, "order", play.Status.ClosingOrderID, "error", err)
			continue
		}
		play.Status.ClosingOrderStatus = state

		switch {
		case state == domain.OrderStateFilled:
			play.Status.PositionExists = false
			if err := m.machine.Transition(ctx, play, domain.StatusClosed); err != nil {
				m.log.Error("closing play", "play", play.ID, "error", err)
			}
		case state.Terminal():
			// Cancelled or rejected: position still exists, re-evaluate.
			play.Status.ClosingOrderID = ""
			if err := m.machine.Transition(ctx, play, domain.StatusOpen); err != nil {
				m.log.Error("reopening play", "play", play.ID, "error", err)
			}
		default:
			m.stamp(play)
		}
	}
}

// ---------------------------------------------------------------------------
// CLOSED: re-drive unfinished OTO promotions
// ---------------------------------------------------------------------------

func (m *Monitor) checkClosed(ctx context.Context) {
	for _, play := range m.loadAll(domain.StatusClosed) {
		if play.Status.ConditionalsHandled {
			continue
		}
		if err := m.machine.PromoteOTOSecondaries(ctx, play); err != nil {
			m.log.Error("re-running OTO promotion", "play", play.ID, "error", err)
		}
	}
}

func (m *Monitor) attempts(playID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryAttempts[playID]
}

func (m *Monitor) bumpAttempts(playID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryAttempts[playID]++
}
