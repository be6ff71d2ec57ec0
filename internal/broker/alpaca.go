package broker

import (
	"context"
	"fmt"
	"math"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"playtrader/internal/domain"
	"playtrader/internal/util"
)

// Compile-time interface checks.
var _ Broker = (*AlpacaBroker)(nil)
var _ MarketData = (*AlpacaBroker)(nil)

// AlpacaBroker implements Broker and MarketData on the Alpaca trading and
// market-data APIs. Quote lookups are rate-limited with a token bucket so a
// busy monitor loop stays inside the data API budget.
type AlpacaBroker struct {
	trading *alpaca.Client
	md      *marketdata.Client
	limiter *util.RateLimiter
}

// NewAlpacaBroker creates an AlpacaBroker with the given credentials and
// endpoints. quoteRatePerMin bounds GetQuote calls; zero disables limiting.
func NewAlpacaBroker(apiKey, apiSecret, baseURL, dataURL string, quoteRatePerMin int) *AlpacaBroker {
	tradingOpts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		tradingOpts.BaseURL = baseURL
	}

	mdOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		mdOpts.BaseURL = dataURL
	}

	b := &AlpacaBroker{
		trading: alpaca.NewClient(tradingOpts),
		md:      marketdata.NewClient(mdOpts),
	}
	if quoteRatePerMin > 0 {
		b.limiter = util.NewRateLimiter(quoteRatePerMin)
	}
	return b
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// OCCSymbol builds the standard OCC option symbol for a play, e.g.
// "SPY240621P00450000".
func OCCSymbol(play *domain.Play) string {
	cp := "C"
	if play.TradeType == domain.TradeTypePut {
		cp = "P"
	}
	strike := int64(math.Round(play.StrikePrice * 1000))
	return fmt.Sprintf("%s%s%s%08d", play.Symbol, play.ExpirationDate.UTC().Format("060102"), cp, strike)
}

// orderSide maps a play side and leg to the broker order side: opening a
// long play buys, opening a short play sells, and closing inverts.
func orderSide(side domain.PositionSide, leg OrderLeg) alpaca.Side {
	buy := side == domain.SideLong
	if leg == LegClose {
		buy = !buy
	}
	if buy {
		return alpaca.Buy
	}
	return alpaca.Sell
}

// SubmitOrder submits one leg of the play as a day order on the option
// contract and returns the Alpaca order ID.
func (b *AlpacaBroker) SubmitOrder(_ context.Context, play *domain.Play, spec OrderSpec) (string, error) {
	qty := decimal.NewFromInt(int64(play.Contracts))
	req := alpaca.PlaceOrderRequest{
		Symbol:      OCCSymbol(play),
		Qty:         &qty,
		Side:        orderSide(play.PositionSide, spec.Leg),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if spec.Type == domain.OrderTypeLimit {
		limit := decimal.NewFromFloat(spec.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}

	order, err := b.trading.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("placing %s order for play %s: %w", spec.Leg, play.ID, err)
	}
	return order.ID, nil
}

// GetOrderStatus returns the normalized state of an Alpaca order.
func (b *AlpacaBroker) GetOrderStatus(_ context.Context, orderID string) (domain.OrderState, error) {
	order, err := b.trading.GetOrder(orderID)
	if err != nil {
		return "", fmt.Errorf("getting order %s: %w", orderID, err)
	}
	return normalizeOrderStatus(order.Status), nil
}

// normalizeOrderStatus maps Alpaca order statuses onto domain.OrderState.
// Unrecognized live-side statuses normalize to accepted so the invariant
// checks still treat them as outstanding.
func normalizeOrderStatus(status string) domain.OrderState {
	switch status {
	case "new":
		return domain.OrderStateNew
	case "partially_filled":
		return domain.OrderStatePartial
	case "filled":
		return domain.OrderStateFilled
	case "canceled", "pending_cancel", "done_for_day":
		return domain.OrderStateCancelled
	case "expired":
		return domain.OrderStateExpired
	case "rejected", "stopped", "suspended":
		return domain.OrderStateRejected
	default:
		return domain.OrderStateAccepted
	}
}

// CancelOrder requests cancellation of an open order.
func (b *AlpacaBroker) CancelOrder(_ context.Context, orderID string) error {
	if err := b.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

// GetAccount returns the current buying power and equity.
func (b *AlpacaBroker) GetAccount(_ context.Context) (*Account, error) {
	acct, err := b.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &Account{
		BuyingPower: acct.BuyingPower.InexactFloat64(),
		Equity:      acct.Equity.InexactFloat64(),
	}, nil
}

// GetQuote returns the latest underlying trade price and option premium.
func (b *AlpacaBroker) GetQuote(ctx context.Context, underlying, contract string) (*Quote, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	trade, err := b.md.GetLatestTrade(underlying, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("getting latest trade for %s: %w", underlying, err)
	}

	optTrade, err := b.md.GetLatestOptionTrade(contract, marketdata.GetLatestOptionTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("getting latest option trade for %s: %w", contract, err)
	}

	return &Quote{
		UnderlyingPrice: trade.Price,
		OptionPremium:   optTrade.Price,
	}, nil
}
