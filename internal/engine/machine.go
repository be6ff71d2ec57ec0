// Package engine owns the play lifecycle: the status state machine with its
// transition table and OCO/OTO side effects, exit-condition evaluation, the
// pre-submission risk gate, and portfolio exposure aggregation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"playtrader/internal/broker"
	"playtrader/internal/domain"
	"playtrader/internal/history"
	"playtrader/internal/playstore"
)

// transitions is the legal status transition table. Anything absent is
// rejected with IllegalTransitionError.
var transitions = map[domain.PlayStatus][]domain.PlayStatus{
	domain.StatusNew:            {domain.StatusPendingOpening},
	domain.StatusPendingOpening: {domain.StatusOpen, domain.StatusNew, domain.StatusExpired},
	domain.StatusOpen:           {domain.StatusPendingClosing, domain.StatusExpired},
	domain.StatusPendingClosing: {domain.StatusClosed, domain.StatusOpen},
	domain.StatusTemp:           {domain.StatusNew},
}

// StateMachine validates and executes play status transitions. It is the
// only component that mutates a play's status envelope on disk: every
// completed transition appends one history record and performs exactly one
// store move.
type StateMachine struct {
	store   *playstore.Store
	history *history.Store
	broker  broker.Broker
	log     *slog.Logger
}

// NewStateMachine creates a StateMachine wired with the given dependencies.
func NewStateMachine(store *playstore.Store, hist *history.Store, b broker.Broker, log *slog.Logger) *StateMachine {
	return &StateMachine{
		store:   store,
		history: hist,
		broker:  b,
		log:     log,
	}
}

// CanTransition reports whether from -> to is in the transition table.
func (m *StateMachine) CanTransition(from, to domain.PlayStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// LegalNext enumerates the statuses reachable from the given status.
func (m *StateMachine) LegalNext(from domain.PlayStatus) []domain.PlayStatus {
	next := transitions[from]
	out := make([]domain.PlayStatus, len(next))
	copy(out, next)
	return out
}

// Transition moves the play from its current status to the target. The
// caller updates the status envelope (order IDs, fill snapshots) before
// calling; Transition validates the request, appends the history record,
// and durably relocates the play. On any failure the play's stored state is
// unchanged.
//
// Contingency side effects (OCO sibling cancellation on OPEN, OTO promotion
// on CLOSED) are applied after the move is durable, best-effort: a failure
// there is logged and left for the monitor to re-apply, guarded by the
// conditionals_handled flag.
func (m *StateMachine) Transition(ctx context.Context, play *domain.Play, to domain.PlayStatus) error {
	from := play.Status.PlayStatus
	if !m.CanTransition(from, to) {
		metricIllegalTransitions.Inc()
		return &domain.IllegalTransitionError{PlayID: play.ID, From: from, To: to}
	}
	if play.Status.LiveOrders() > 1 {
		return fmt.Errorf("play %s has two live orders, refusing transition", play.ID)
	}

	// History first: the log is the recovery source. A crash after the
	// append but before the move is repaired by replaying the log and
	// re-issuing the move, which is idempotent.
	snapshot := *play
	snapshot.Status.PlayStatus = to
	if err := m.history.Append(ctx, &snapshot, from, to); err != nil {
		return fmt.Errorf("recording transition for play %s: %w", play.ID, err)
	}

	if err := m.store.Move(play, from, to); err != nil {
		return err
	}
	metricTransitions.WithLabelValues(string(to)).Inc()
	m.log.Info("play transitioned", "play", play.ID, "name", play.Name, "from", from, "to", to)

	switch to {
	case domain.StatusOpen:
		if len(play.SiblingIDs) > 0 && !play.Status.ConditionalsHandled {
			if err := m.HandleOCOSiblings(ctx, play); err != nil {
				m.log.Error("OCO sibling handling failed, will be retried",
					"play", play.ID, "error", err)
			}
		}
	case domain.StatusClosed:
		if !play.Status.ConditionalsHandled {
			if err := m.PromoteOTOSecondaries(ctx, play); err != nil {
				m.log.Error("OTO promotion failed, will be retried",
					"play", play.ID, "error", err)
			}
		}
	}
	return nil
}

// HandleOCOSiblings cancels the entry orders of every sibling of a play
// that just filled and retires the siblings. The primary is already durably
// OPEN when this runs (primary-first ordering), so a crash part-way leaves
// siblings re-checkable rather than the primary un-transitioned. The whole
// pass is idempotent and re-run by the monitor until conditionals_handled
// is set on the primary.
func (m *StateMachine) HandleOCOSiblings(ctx context.Context, play *domain.Play) error {
	for _, sibID := range play.SiblingIDs {
		sibling, err := m.store.Find(sibID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("loading OCO sibling %s: %w", sibID, err)
		}
		if sibling.Status.PlayStatus.Terminal() {
			continue
		}

		if sibling.Status.OrderStatus.Live() {
			if err := m.broker.CancelOrder(ctx, sibling.Status.OrderID); err != nil {
				return fmt.Errorf("cancelling OCO sibling order %s: %w", sibling.Status.OrderID, err)
			}
			sibling.Status.OrderStatus = domain.OrderStateCancelled
		}
		sibling.Status.ContingencyOrderID = play.Status.OrderID
		sibling.Status.ContingencyOrderStatus = domain.OrderStateCancelled

		switch sibling.Status.PlayStatus {
		case domain.StatusPendingOpening:
			if err := m.Transition(ctx, sibling, domain.StatusExpired); err != nil {
				return fmt.Errorf("retiring OCO sibling %s: %w", sibID, err)
			}
		default:
			// A sibling still in NEW has no order to cancel; the cancelled
			// contingency marker keeps the monitor from ever arming it.
			if err := m.store.Put(sibling); err != nil {
				return fmt.Errorf("marking OCO sibling %s: %w", sibID, err)
			}
		}
		m.log.Info("OCO sibling retired", "primary", play.ID, "sibling", sibID)
	}

	play.Status.ConditionalsHandled = true
	return m.store.Put(play)
}

// PromoteOTOSecondaries moves every TEMP play whose trigger is this
// now-closed play into NEW. Exactly one promotion occurs per secondary:
// the conditionals_handled flag on the trigger makes a second call a no-op,
// and a secondary already moved out of TEMP is simply not found there.
func (m *StateMachine) PromoteOTOSecondaries(ctx context.Context, trigger *domain.Play) error {
	if trigger.Status.ConditionalsHandled {
		return nil
	}

	refs, err := m.store.List(domain.StatusTemp)
	if err != nil {
		return fmt.Errorf("listing temp plays: %w", err)
	}
	for _, ref := range refs {
		secondary, err := m.store.Load(ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			var corrupt *domain.CorruptRecordError
			if errors.As(err, &corrupt) {
				metricCorruptSkipped.Inc()
				m.log.Warn("skipping corrupt temp record", "path", corrupt.Path, "error", corrupt.Err)
				continue
			}
			return err
		}
		if secondary.TriggerID != trigger.ID {
			continue
		}
		if err := m.Transition(ctx, secondary, domain.StatusNew); err != nil {
			return fmt.Errorf("promoting OTO secondary %s: %w", secondary.ID, err)
		}
		m.log.Info("OTO secondary promoted", "trigger", trigger.ID, "secondary", secondary.ID)
	}

	trigger.Status.ConditionalsHandled = true
	return m.store.Put(trigger)
}
