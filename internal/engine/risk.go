package engine

import (
	"context"
	"log/slog"

	"playtrader/internal/broker"
	"playtrader/internal/config"
	"playtrader/internal/domain"
)

// Decision is the outcome of a risk check, also served by the preview
// endpoint for plays that do not exist in the store yet.
type Decision struct {
	Approved   bool              `json:"approved"`
	Reason     domain.RiskReason `json:"reason,omitempty"`
	RequiredBP float64           `json:"required_bp"`
	Limit      float64           `json:"limit,omitempty"`
	Equity     float64           `json:"equity"`
	ExposureBP float64           `json:"exposure_bp"`
}

// RiskGate approves or rejects a NEW -> PENDING_OPENING transition for a
// short-side play before any broker call is made. Long plays always pass.
// Checks run in order and short-circuit on the first failure:
//
//  1. required buying power within the account's buying power,
//  2. aggregate capital allocation within equity × max_capital_allocation,
//  3. aggregate notional within equity × max_notional_leverage.
//
// Collaborator failures reject the transition (fail closed, never open).
type RiskGate struct {
	cfg      config.RiskConfig
	broker   broker.Broker
	exposure *ExposureAggregator
	log      *slog.Logger
}

// NewRiskGate creates a RiskGate with explicit limits; no ambient
// configuration is consulted.
func NewRiskGate(cfg config.RiskConfig, b broker.Broker, exposure *ExposureAggregator, log *slog.Logger) *RiskGate {
	return &RiskGate{
		cfg:      cfg,
		broker:   b,
		exposure: exposure,
		log:      log,
	}
}

// Approve validates the prospective submission and returns nil when it may
// proceed. Rejections are *domain.RiskViolationError for limit breaches and
// *domain.RiskValidationError for collaborator failures; in both cases the
// play is left untouched in NEW.
func (g *RiskGate) Approve(ctx context.Context, play *domain.Play) error {
	decision, err := g.Preview(ctx, play)
	if err != nil {
		return err
	}
	if !decision.Approved {
		metricRiskRejections.WithLabelValues(string(decision.Reason)).Inc()
		return &domain.RiskViolationError{
			Reason:   decision.Reason,
			Required: decision.RequiredBP,
			Limit:    decision.Limit,
		}
	}
	metricRiskApprovals.Inc()
	return nil
}

// Preview runs the risk checks without side effects and reports which limit
// (if any) would be breached. Long plays are approved without validation.
func (g *RiskGate) Preview(ctx context.Context, play *domain.Play) (*Decision, error) {
	required := play.RequiredBuyingPower()
	if play.PositionSide != domain.SideShort {
		return &Decision{Approved: true, RequiredBP: required}, nil
	}

	account, err := g.broker.GetAccount(ctx)
	if err != nil {
		g.log.Error("risk check failed to read account, rejecting", "play", play.ID, "error", err)
		return nil, &domain.RiskValidationError{Err: err}
	}

	if required > account.BuyingPower {
		return &Decision{
			Reason:     domain.RiskInsufficientBuyingPower,
			RequiredBP: required,
			Limit:      account.BuyingPower,
			Equity:     account.Equity,
		}, nil
	}

	equity := account.Equity
	if equity <= 0 {
		// Degraded mode: equity unavailable, approximate with buying power.
		// Conservative for a cash account, and better than blocking all
		// short trading on a transient lookup failure.
		equity = account.BuyingPower
		g.log.Warn("account equity unavailable, falling back to buying power",
			"play", play.ID, "buying_power", account.BuyingPower)
	}

	used, err := g.exposure.TotalBPUsed()
	if err != nil {
		g.log.Error("risk check failed to aggregate exposure, rejecting", "play", play.ID, "error", err)
		return nil, &domain.RiskValidationError{Err: err}
	}
	allocationLimit := equity * g.cfg.MaxCapitalAllocation
	if used+required > allocationLimit {
		return &Decision{
			Reason:     domain.RiskExceedsCapitalAllocation,
			RequiredBP: required,
			Limit:      allocationLimit,
			Equity:     equity,
			ExposureBP: used,
		}, nil
	}

	notional, err := g.exposure.TotalNotional()
	if err != nil {
		g.log.Error("risk check failed to aggregate notional, rejecting", "play", play.ID, "error", err)
		return nil, &domain.RiskValidationError{Err: err}
	}
	leverageLimit := equity * g.cfg.MaxNotionalLeverage
	if notional+required > leverageLimit {
		return &Decision{
			Reason:     domain.RiskExceedsNotionalLeverage,
			RequiredBP: required,
			Limit:      leverageLimit,
			Equity:     equity,
			ExposureBP: used,
		}, nil
	}

	return &Decision{
		Approved:   true,
		RequiredBP: required,
		Equity:     equity,
		ExposureBP: used,
	}, nil
}
