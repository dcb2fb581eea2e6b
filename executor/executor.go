package executor

import (
	"context"
	"fmt"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/metrics"
	"github.com/evdnx/spotbot/risk"
	"github.com/evdnx/spotbot/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order purposes, used as log context and metric label.
const (
	PurposeEntry      = "entry"
	PurposeTakeProfit = "take_profit"
	PurposePartial    = "partial_close"
	PurposeExit       = "exit"
)

// OrderExecutor places orders through a Gateway. Every call blocks until the
// venue answers.
type OrderExecutor struct {
	gw             Gateway
	log            logger.Logger
	category       string
	pricePrecision int32
	takeProfitRR   float64
	newLinkID      func() string
}

func NewOrderExecutor(gw Gateway, cfg config.StrategyConfig, log logger.Logger) *OrderExecutor {
	return &OrderExecutor{
		gw:             gw,
		log:            log,
		category:       cfg.Category,
		pricePrecision: cfg.PricePrecision,
		takeProfitRR:   cfg.TakeProfitRR,
		newLinkID:      uuid.NewString,
	}
}

// Submit places one order, logging and counting the outcome. Failures are
// wrapped in types.ErrOrderPlacementFailed.
func (e *OrderExecutor) Submit(ctx context.Context, o types.Order, purpose string) (types.OrderAck, error) {
	if o.LinkID == "" {
		o.LinkID = e.newLinkID()
	}
	ack, err := e.gw.CreateOrder(ctx, e.category, o)
	if err != nil {
		e.log.Error("order_submit_failed",
			logger.String("symbol", o.Symbol),
			logger.String("side", string(o.Side)),
			logger.String("type", string(o.Type)),
			logger.Stringer("qty", o.Qty),
			logger.Stringer("price", o.Price),
			logger.String("link_id", o.LinkID),
			logger.String("purpose", purpose),
			logger.Err(err),
		)
		metrics.OrderFailures.WithLabelValues(o.Symbol, purpose).Inc()
		return types.OrderAck{}, fmt.Errorf("%w: %s %s %s: %w", types.ErrOrderPlacementFailed, purpose, o.Side, o.Symbol, err)
	}
	e.log.Info("order_placed",
		logger.String("symbol", o.Symbol),
		logger.String("side", string(o.Side)),
		logger.String("type", string(o.Type)),
		logger.Stringer("qty", o.Qty),
		logger.Stringer("price", o.Price),
		logger.String("order_id", ack.OrderID),
		logger.String("link_id", o.LinkID),
		logger.String("purpose", purpose),
	)
	metrics.OrdersSubmitted.WithLabelValues(o.Symbol, purpose).Inc()
	return ack, nil
}

// MarketSell sells qty at market.
func (e *OrderExecutor) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal, purpose string) (types.OrderAck, error) {
	return e.Submit(ctx, types.Order{
		Symbol:  symbol,
		Side:    types.Sell,
		Type:    types.Market,
		Qty:     qty,
		Comment: purpose,
	}, purpose)
}

// Cancel cancels a resting order.
func (e *OrderExecutor) Cancel(ctx context.Context, symbol, orderID string) error {
	if err := e.gw.CancelOrder(ctx, e.category, symbol, orderID); err != nil {
		return fmt.Errorf("cancel %s %s: %w", symbol, orderID, err)
	}
	e.log.Info("order_cancelled", logger.String("symbol", symbol), logger.String("order_id", orderID))
	return nil
}

// Levels returns the stop and target for an entry, rounded to the price
// precision: stop = entry - distance, target = entry + RR * distance.
func (e *OrderExecutor) Levels(entryPrice, stopDistance float64) (stop, target decimal.Decimal) {
	stop = decimal.NewFromFloat(entryPrice - stopDistance).Round(e.pricePrecision)
	target = decimal.NewFromFloat(entryPrice + e.takeProfitRR*stopDistance).Round(e.pricePrecision)
	return stop, target
}

// TakeProfit rests a limit SELL for qty at price.
func (e *OrderExecutor) TakeProfit(ctx context.Context, symbol string, qty, price decimal.Decimal) (types.OrderAck, error) {
	return e.Submit(ctx, types.Order{
		Symbol:  symbol,
		Side:    types.Sell,
		Type:    types.Limit,
		Qty:     qty,
		Price:   price,
		Comment: "take profit",
	}, PurposeTakeProfit)
}

// Enter runs the entry sequence:
//
//  1. market BUY for the sized quantity; a failure aborts with no state,
//  2. stop and target levels from the stop distance,
//  3. limit SELL at the target for the same quantity.
//
// The stop is not sent to the venue; the position monitor enforces it.
// filled reports whether step 1 succeeded. When step 3 fails the plan is
// still valid and is returned with filled set alongside the error, so the
// caller can keep managing the position.
func (e *OrderExecutor) Enter(ctx context.Context, symbol string, entryPrice float64, s risk.Sizing) (plan types.PositionPlan, filled bool, err error) {
	buy, err := e.Submit(ctx, types.Order{
		Symbol:  symbol,
		Side:    types.Buy,
		Type:    types.Market,
		Qty:     s.Qty,
		Comment: "entry long",
	}, PurposeEntry)
	if err != nil {
		return types.PositionPlan{}, false, err
	}

	stop, target := e.Levels(entryPrice, s.StopDistance)
	plan = types.PositionPlan{
		Symbol:          symbol,
		EntryOrderID:    buy.OrderID,
		EntryPrice:      entryPrice,
		Quantity:        s.Qty,
		StopPrice:       stop.InexactFloat64(),
		TakeProfitPrice: target.InexactFloat64(),
	}

	tp, err := e.TakeProfit(ctx, symbol, s.Qty, target)
	if err != nil {
		return plan, true, err
	}
	plan.TakeProfitID = tp.OrderID
	return plan, true, nil
}
