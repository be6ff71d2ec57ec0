package engine

import (
	"log/slog"

	"playtrader/internal/broker"
	"playtrader/internal/domain"
)

// ConditionKind identifies which configured condition fired.
type ConditionKind string

const (
	CondSharePrice ConditionKind = "share_price"
	CondPremiumPct ConditionKind = "premium_pct"
	CondStockPct   ConditionKind = "stock_pct"
)

// Evaluation is the outcome of checking a play's exit conditions against a
// quote. OrderType (and LimitPrice for limit orders) describe the closing
// order to submit when Triggered is set.
type Evaluation struct {
	Triggered  bool
	Condition  ConditionKind
	OrderType  domain.OrderType
	LimitPrice float64
}

// Evaluator decides whether a play's entry, take-profit, or stop-loss
// conditions are satisfied by a market snapshot. It never mutates play
// state; a missing quote is treated as "not triggered" because no action is
// safer than a spurious exit.
type Evaluator struct {
	log *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(log *slog.Logger) *Evaluator {
	return &Evaluator{log: log}
}

// risesWithUnderlying reports whether the play gains value when the
// underlying price rises: long calls and short puts do, long puts and short
// calls do not.
func risesWithUnderlying(play *domain.Play) bool {
	bullish := play.TradeType == domain.TradeTypeCall
	if play.PositionSide == domain.SideShort {
		bullish = !bullish
	}
	return bullish
}

// EvaluateEntry reports whether the underlying has reached the play's entry
// trigger price. Plays that profit from a rise arm once price trades at or
// above the trigger; the inverse plays arm at or below.
func (e *Evaluator) EvaluateEntry(play *domain.Play, quote *broker.Quote) bool {
	if quote == nil {
		e.log.Warn("no quote for entry evaluation", "play", play.ID, "symbol", play.Symbol)
		return false
	}
	if risesWithUnderlying(play) {
		return quote.UnderlyingPrice >= play.Entry.TriggerPrice
	}
	return quote.UnderlyingPrice <= play.Entry.TriggerPrice
}

// EvaluateTakeProfit checks the play's take-profit conditions (OR
// semantics) against the quote.
func (e *Evaluator) EvaluateTakeProfit(play *domain.Play, quote *broker.Quote) Evaluation {
	if !play.TakeProfit.Configured() {
		return Evaluation{}
	}
	ev := e.evaluate(play, quote, play.TakeProfit, true)
	if ev.Triggered {
		ev.OrderType = play.TakeProfit.OrderType
		if ev.OrderType == "" {
			ev.OrderType = domain.OrderTypeMarket
		}
	}
	return ev
}

// EvaluateStopLoss checks the play's stop-loss conditions (OR semantics)
// against the quote. SL_type picks the closing order type: STOP submits a
// market order on breach, LIMIT a resting limit order at the configured
// price.
func (e *Evaluator) EvaluateStopLoss(play *domain.Play, quote *broker.Quote) Evaluation {
	if !play.StopLoss.Configured() {
		return Evaluation{}
	}
	ev := e.evaluate(play, quote, play.StopLoss, false)
	if ev.Triggered {
		switch play.StopLoss.SLType {
		case domain.SLTypeLimit:
			ev.OrderType = domain.OrderTypeLimit
			if play.StopLoss.SharePrice != nil {
				ev.LimitPrice = *play.StopLoss.SharePrice
			}
		default:
			ev.OrderType = domain.OrderTypeMarket
		}
	}
	return ev
}

// evaluate runs the shared OR-evaluation over a condition set. profitSide
// is true for take-profit (conditions fire in the play's favor) and false
// for stop-loss (conditions fire against it).
func (e *Evaluator) evaluate(play *domain.Play, quote *broker.Quote, conds *domain.ExitConditions, profitSide bool) Evaluation {
	if quote == nil {
		e.log.Warn("no quote for exit evaluation", "play", play.ID, "symbol", play.Symbol)
		return Evaluation{}
	}

	favorable := risesWithUnderlying(play) == profitSide

	if conds.SharePrice != nil {
		target := *conds.SharePrice
		hit := quote.UnderlyingPrice <= target
		if favorable {
			hit = quote.UnderlyingPrice >= target
		}
		if hit {
			return Evaluation{Triggered: true, Condition: CondSharePrice}
		}
	}

	// Percentage conditions need the entry snapshots; plays whose entry
	// never filled have none, so these checks are skipped rather than
	// raising (absolute checks above still apply).
	if conds.PremiumPct != nil && play.EntryPremium != nil && *play.EntryPremium > 0 {
		pct := *conds.PremiumPct / 100
		entry := *play.EntryPremium
		// Premium profit is up for long plays, down for short plays.
		premiumUp := play.PositionSide == domain.SideLong
		if !profitSide {
			premiumUp = !premiumUp
		}
		var hit bool
		if premiumUp {
			hit = quote.OptionPremium >= entry*(1+pct)
		} else {
			hit = quote.OptionPremium <= entry*(1-pct)
		}
		if hit {
			return Evaluation{Triggered: true, Condition: CondPremiumPct}
		}
	}

	if conds.StockPct != nil && play.EntryStockPrice != nil && *play.EntryStockPrice > 0 {
		pct := *conds.StockPct / 100
		entry := *play.EntryStockPrice
		var hit bool
		if favorable {
			hit = quote.UnderlyingPrice >= entry*(1+pct)
		} else {
			hit = quote.UnderlyingPrice <= entry*(1-pct)
		}
		if hit {
			return Evaluation{Triggered: true, Condition: CondStockPct}
		}
	}

	return Evaluation{}
}
