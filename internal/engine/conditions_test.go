package engine

import (
	"testing"
	"time"

	"playtrader/internal/broker"
	"playtrader/internal/domain"
	"playtrader/internal/util"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(util.NewLogger("error", "text"))
}

func conditionPlay(tradeType domain.TradeType, side domain.PositionSide) *domain.Play {
	p := domain.NewPlay("cond-test", "AAPL", tradeType, 150,
		time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC), 1, side, domain.ClassSimple)
	p.Entry = domain.EntryPoint{TriggerPrice: 150, OrderType: domain.OrderTypeMarket}
	return p
}

func f(v float64) *float64 { return &v }

func TestRisesWithUnderlying(t *testing.T) {
	cases := []struct {
		tradeType domain.TradeType
		side      domain.PositionSide
		want      bool
	}{
		{domain.TradeTypeCall, domain.SideLong, true},
		{domain.TradeTypePut, domain.SideShort, true},
		{domain.TradeTypePut, domain.SideLong, false},
		{domain.TradeTypeCall, domain.SideShort, false},
	}
	for _, c := range cases {
		p := conditionPlay(c.tradeType, c.side)
		if got := risesWithUnderlying(p); got != c.want {
			t.Errorf("risesWithUnderlying(%s %s) = %v, want %v", c.side, c.tradeType, got, c.want)
		}
	}
}

func TestEvaluateEntry(t *testing.T) {
	eval := newEvaluator()

	// Long call arms at or above the trigger.
	longCall := conditionPlay(domain.TradeTypeCall, domain.SideLong)
	if eval.EvaluateEntry(longCall, &broker.Quote{UnderlyingPrice: 149.99}) {
		t.Error("long call armed below trigger")
	}
	if !eval.EvaluateEntry(longCall, &broker.Quote{UnderlyingPrice: 150}) {
		t.Error("long call did not arm at trigger")
	}

	// Long put arms at or below the trigger.
	longPut := conditionPlay(domain.TradeTypePut, domain.SideLong)
	if eval.EvaluateEntry(longPut, &broker.Quote{UnderlyingPrice: 150.01}) {
		t.Error("long put armed above trigger")
	}
	if !eval.EvaluateEntry(longPut, &broker.Quote{UnderlyingPrice: 150}) {
		t.Error("long put did not arm at trigger")
	}

	// Missing quote never arms.
	if eval.EvaluateEntry(longCall, nil) {
		t.Error("entry armed without a quote")
	}
}

func TestTakeProfitPremiumPct(t *testing.T) {
	eval := newEvaluator()

	// Long call bought at a $2.00 premium with a 50% take-profit.
	play := conditionPlay(domain.TradeTypeCall, domain.SideLong)
	play.EntryPremium = f(2.00)
	play.TakeProfit = &domain.ExitConditions{PremiumPct: f(50), OrderType: domain.OrderTypeMarket}

	ev := eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 155, OptionPremium: 2.90})
	if ev.Triggered {
		t.Error("take-profit fired below the 50% premium gain")
	}

	ev = eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 155, OptionPremium: 3.00})
	if !ev.Triggered {
		t.Fatal("take-profit did not fire at the 50% premium gain")
	}
	if ev.Condition != CondPremiumPct {
		t.Errorf("condition = %s, want %s", ev.Condition, CondPremiumPct)
	}
	if ev.OrderType != domain.OrderTypeMarket {
		t.Errorf("order type = %s, want market", ev.OrderType)
	}

	// For a short play the premium profits downward.
	short := conditionPlay(domain.TradeTypePut, domain.SideShort)
	short.EntryPremium = f(2.00)
	short.TakeProfit = &domain.ExitConditions{PremiumPct: f(50)}
	ev = eval.EvaluateTakeProfit(short, &broker.Quote{UnderlyingPrice: 155, OptionPremium: 1.00})
	if !ev.Triggered {
		t.Error("short take-profit did not fire on premium decay")
	}
}

func TestPercentageConditionsSkippedWithoutSnapshots(t *testing.T) {
	eval := newEvaluator()

	play := conditionPlay(domain.TradeTypeCall, domain.SideLong)
	play.TakeProfit = &domain.ExitConditions{
		PremiumPct: f(50),
		StockPct:   f(10),
	}

	// No entry snapshots recorded: percentage conditions must be skipped,
	// not treated as zero-threshold triggers.
	ev := eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 200, OptionPremium: 10})
	if ev.Triggered {
		t.Error("percentage condition fired without an entry snapshot")
	}

	// An absolute condition alongside still applies.
	play.TakeProfit.SharePrice = f(160)
	ev = eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 200, OptionPremium: 10})
	if !ev.Triggered || ev.Condition != CondSharePrice {
		t.Errorf("absolute condition skipped: %+v", ev)
	}
}

func TestStopLossSharePrice(t *testing.T) {
	eval := newEvaluator()

	// Long call: the underlying falling through the stop is adverse.
	play := conditionPlay(domain.TradeTypeCall, domain.SideLong)
	play.StopLoss = &domain.ExitConditions{SharePrice: f(140), SLType: domain.SLTypeStop}

	ev := eval.EvaluateStopLoss(play, &broker.Quote{UnderlyingPrice: 141})
	if ev.Triggered {
		t.Error("stop-loss fired above the stop price")
	}

	ev = eval.EvaluateStopLoss(play, &broker.Quote{UnderlyingPrice: 140})
	if !ev.Triggered {
		t.Fatal("stop-loss did not fire at the stop price")
	}
	if ev.OrderType != domain.OrderTypeMarket {
		t.Errorf("STOP stop-loss order type = %s, want market", ev.OrderType)
	}
}

func TestStopLossLimitType(t *testing.T) {
	eval := newEvaluator()

	play := conditionPlay(domain.TradeTypeCall, domain.SideLong)
	play.StopLoss = &domain.ExitConditions{SharePrice: f(140), SLType: domain.SLTypeLimit}

	ev := eval.EvaluateStopLoss(play, &broker.Quote{UnderlyingPrice: 139})
	if !ev.Triggered {
		t.Fatal("limit stop-loss did not fire")
	}
	if ev.OrderType != domain.OrderTypeLimit {
		t.Errorf("LIMIT stop-loss order type = %s, want limit", ev.OrderType)
	}
	if ev.LimitPrice != 140 {
		t.Errorf("limit price = %v, want 140", ev.LimitPrice)
	}
}

func TestStockPctConditions(t *testing.T) {
	eval := newEvaluator()

	// Short put entered with the stock at $150; profit if the stock rises.
	play := conditionPlay(domain.TradeTypePut, domain.SideShort)
	play.EntryStockPrice = f(150)
	play.TakeProfit = &domain.ExitConditions{StockPct: f(10)}
	play.StopLoss = &domain.ExitConditions{StockPct: f(10), SLType: domain.SLTypeStop}

	if ev := eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 164}); ev.Triggered {
		t.Error("take-profit fired below +10%")
	}
	if ev := eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 165}); !ev.Triggered {
		t.Error("take-profit did not fire at +10%")
	}
	if ev := eval.EvaluateStopLoss(play, &broker.Quote{UnderlyingPrice: 136}); ev.Triggered {
		t.Error("stop-loss fired above -10%")
	}
	if ev := eval.EvaluateStopLoss(play, &broker.Quote{UnderlyingPrice: 135}); !ev.Triggered {
		t.Error("stop-loss did not fire at -10%")
	}
}

func TestExitWithoutConditionsOrQuote(t *testing.T) {
	eval := newEvaluator()
	play := conditionPlay(domain.TradeTypeCall, domain.SideLong)

	if ev := eval.EvaluateTakeProfit(play, &broker.Quote{UnderlyingPrice: 999}); ev.Triggered {
		t.Error("take-profit fired with no conditions configured")
	}

	play.StopLoss = &domain.ExitConditions{SharePrice: f(140), SLType: domain.SLTypeStop}
	if ev := eval.EvaluateStopLoss(play, nil); ev.Triggered {
		t.Error("stop-loss fired without a quote")
	}
}
