package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/executor"
	"github.com/evdnx/spotbot/indicator"
	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/metrics"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// MonitorState is the lifecycle state of a managed position. Break-even is
// a flag on top of Monitoring, not a state of its own.
type MonitorState int

const (
	Monitoring MonitorState = iota
	Closed
)

func (s MonitorState) String() string {
	if s == Closed {
		return "closed"
	}
	return "monitoring"
}

// ExitReason names the condition that closed a position.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitTrendReversal ExitReason = "trend_reversal"
)

// PositionMonitor polls the latest price of one open position and exits it
// on stop, target or trend reversal. It owns the plan after hand-off.
type PositionMonitor struct {
	md    executor.MarketData
	ex    *executor.OrderExecutor
	cfg   config.StrategyConfig
	clock Clock
	log   logger.Logger

	plan     types.PositionPlan
	state    MonitorState
	armed    bool
	reason   ExitReason
	failures int
	realized float64         // PnL already booked by the partial close
	bought   decimal.Decimal // quantity filled at entry
}

func NewPositionMonitor(md executor.MarketData, ex *executor.OrderExecutor, plan types.PositionPlan,
	cfg config.StrategyConfig, clock Clock, log logger.Logger) *PositionMonitor {
	return &PositionMonitor{md: md, ex: ex, cfg: cfg, clock: clock, log: log, plan: plan, bought: plan.Quantity}
}

func (m *PositionMonitor) Plan() types.PositionPlan { return m.plan }
func (m *PositionMonitor) State() MonitorState      { return m.state }
func (m *PositionMonitor) BreakevenArmed() bool     { return m.armed }
func (m *PositionMonitor) Reason() ExitReason       { return m.reason }

// Run waits one poll interval, polls, and repeats until the position is
// closed. It returns ctx.Err() when cancelled between iterations, the exit
// error when an order could not be placed after retries, and ErrGateway
// once MaxPollFailures polls in a row could not read the market.
func (m *PositionMonitor) Run(ctx context.Context) error {
	sym := m.plan.Symbol
	metrics.PositionsOpen.WithLabelValues(sym).Set(1)
	defer metrics.PositionsOpen.WithLabelValues(sym).Set(0)

	m.log.Info("monitor_started",
		logger.String("symbol", sym),
		logger.Float64("entry", m.plan.EntryPrice),
		logger.Float64("stop", m.plan.StopPrice),
		logger.Float64("take_profit", m.plan.TakeProfitPrice),
		logger.Stringer("qty", m.plan.Quantity),
		logger.Duration("poll_interval", m.cfg.PollInterval),
	)
	for m.state != Closed {
		if err := m.wait(ctx, m.cfg.PollInterval); err != nil {
			m.log.Warn("monitor_cancelled", logger.String("symbol", sym), logger.Err(err))
			return err
		}
		if err := m.Poll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Poll runs one iteration: break-even, stop, target, trend, in that order.
// Break-even moves the stop before the stop check of the same pass.
func (m *PositionMonitor) Poll(ctx context.Context) error {
	if m.state == Closed {
		return nil
	}
	price, err := m.latestPrice(ctx)
	if err != nil {
		return m.pollFailed(err)
	}

	if !m.armed && price >= m.breakevenLevel() {
		if err := m.armBreakeven(ctx, price); err != nil {
			return err
		}
		if m.state == Closed {
			return nil
		}
	}
	switch {
	case price <= m.plan.StopPrice:
		return m.exit(ctx, ExitStopLoss, price)
	case price >= m.plan.TakeProfitPrice:
		return m.exit(ctx, ExitTakeProfit, price)
	}

	down, fast, slow, err := m.trendDown(ctx)
	if err != nil {
		return m.pollFailed(err)
	}
	m.failures = 0
	if down {
		m.log.Info("trend_reversal",
			logger.String("symbol", m.plan.Symbol),
			logger.Float64("ema_fast", fast),
			logger.Float64("ema_slow", slow),
		)
		return m.exit(ctx, ExitTrendReversal, price)
	}
	m.log.Info("position_check",
		logger.String("symbol", m.plan.Symbol),
		logger.Float64("price", price),
		logger.Float64("stop", m.plan.StopPrice),
		logger.Bool("breakeven_armed", m.armed),
	)
	metrics.MonitorPolls.WithLabelValues(m.plan.Symbol, "hold").Inc()
	return nil
}

func (m *PositionMonitor) breakevenLevel() float64 {
	return m.plan.EntryPrice + (m.plan.TakeProfitPrice-m.plan.EntryPrice)*m.cfg.BreakevenTrigger
}

// armBreakeven moves the stop to entry and sells the partial fraction. The
// flag is set first so a failed partial sell never fires twice. A resting
// take-profit holds the whole position, so it is cancelled before the
// partial sell and placed again for the remainder.
func (m *PositionMonitor) armBreakeven(ctx context.Context, price float64) error {
	sym := m.plan.Symbol
	m.armed = true
	m.plan.StopPrice = m.plan.EntryPrice

	part := m.plan.Quantity.Mul(decimal.NewFromFloat(m.cfg.PartialCloseFraction)).Round(m.cfg.QuantityPrecision)
	m.log.Info("breakeven_armed",
		logger.String("symbol", sym),
		logger.Float64("price", price),
		logger.Float64("stop", m.plan.StopPrice),
		logger.Stringer("partial_qty", part),
	)
	if !part.IsPositive() {
		return nil
	}

	hadTakeProfit := m.plan.TakeProfitID != ""
	if hadTakeProfit {
		err := m.ex.Cancel(ctx, sym, m.plan.TakeProfitID)
		switch {
		case errors.Is(err, types.ErrOrderNotFound):
			m.takeProfitFilled(err)
			return nil
		case err != nil:
			m.log.Warn("partial_close_skipped", logger.String("symbol", sym), logger.Err(err))
			return nil
		}
		m.plan.TakeProfitID = ""
	}

	if err := m.sell(ctx, part, executor.PurposePartial); err != nil {
		if hadTakeProfit {
			m.placeTakeProfit(ctx)
		}
		return err
	}
	m.realized += (price - m.plan.EntryPrice) * part.InexactFloat64()
	m.plan.Quantity = m.plan.Quantity.Sub(part)
	if hadTakeProfit {
		m.placeTakeProfit(ctx)
	}
	return nil
}

// placeTakeProfit rests a limit sell for the open quantity at the target. A
// failure leaves the position to the monitor's own target check.
func (m *PositionMonitor) placeTakeProfit(ctx context.Context) {
	target := decimal.NewFromFloat(m.plan.TakeProfitPrice).Round(m.cfg.PricePrecision)
	ack, err := m.ex.TakeProfit(ctx, m.plan.Symbol, m.plan.Quantity, target)
	if err != nil {
		m.log.Error("take_profit_replace_failed",
			logger.String("symbol", m.plan.Symbol),
			logger.Stringer("qty", m.plan.Quantity),
			logger.Err(err),
		)
		return
	}
	m.plan.TakeProfitID = ack.OrderID
}

// takeProfitFilled closes the position when the venue reports the resting
// take-profit gone: it sold the open quantity at the target.
func (m *PositionMonitor) takeProfitFilled(cause error) {
	m.log.Info("take_profit_filled",
		logger.String("symbol", m.plan.Symbol),
		logger.String("order_id", m.plan.TakeProfitID),
		logger.Err(cause),
	)
	m.plan.TakeProfitID = ""
	m.closed(ExitTakeProfit, m.plan.TakeProfitPrice)
}

func (m *PositionMonitor) exit(ctx context.Context, reason ExitReason, price float64) error {
	sym := m.plan.Symbol
	if m.cfg.CancelTakeProfitOnExit && m.plan.TakeProfitID != "" {
		err := m.ex.Cancel(ctx, sym, m.plan.TakeProfitID)
		switch {
		case errors.Is(err, types.ErrOrderNotFound):
			m.takeProfitFilled(err)
			return nil
		case err != nil:
			m.log.Warn("take_profit_cancel_failed", logger.String("symbol", sym), logger.Err(err))
		default:
			m.plan.TakeProfitID = ""
		}
	}
	if err := m.sell(ctx, m.plan.Quantity, executor.PurposeExit); err != nil {
		return err
	}
	m.closed(reason, price)
	return nil
}

// closed marks the position done and books the estimated PnL of the
// remaining quantity at price.
func (m *PositionMonitor) closed(reason ExitReason, price float64) {
	sym := m.plan.Symbol
	m.state = Closed
	m.reason = reason

	entry := m.plan.EntryPrice
	gross := m.realized + (price-entry)*m.plan.Quantity.InexactFloat64()
	fees := m.plan.RoundTripFee.InexactFloat64() * entry * m.bought.InexactFloat64()
	m.log.Info("position_closed",
		logger.String("symbol", sym),
		logger.String("reason", string(reason)),
		logger.Float64("price", price),
		logger.Stringer("qty", m.plan.Quantity),
		logger.Float64("estimated_pnl", gross-fees),
	)
	metrics.PositionExits.WithLabelValues(sym, string(reason)).Inc()
	metrics.MonitorPolls.WithLabelValues(sym, "exit").Inc()
}

// sell places a market sell, retrying with exponential backoff. Every
// attempt's error is kept.
func (m *PositionMonitor) sell(ctx context.Context, qty decimal.Decimal, purpose string) error {
	var errs error
	backoff := m.cfg.ExitRetryBackoff
	attempts := m.cfg.ExitOrderRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			m.log.Warn("exit_order_retry",
				logger.String("symbol", m.plan.Symbol),
				logger.String("purpose", purpose),
				logger.Int("attempt", i+1),
				logger.Duration("backoff", backoff),
			)
			if err := m.wait(ctx, backoff); err != nil {
				return fmt.Errorf("%w: %s %s: %w", types.ErrOrderPlacementFailed, purpose, m.plan.Symbol, multierr.Append(errs, err))
			}
			backoff *= 2
			if backoff > m.cfg.ExitRetryMaxBackoff {
				backoff = m.cfg.ExitRetryMaxBackoff
			}
		}
		_, err := m.ex.MarketSell(ctx, m.plan.Symbol, qty, purpose)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return fmt.Errorf("%w: %s %s gave up after %d attempts: %w", types.ErrOrderPlacementFailed, purpose, m.plan.Symbol, attempts, errs)
}

func (m *PositionMonitor) pollFailed(err error) error {
	m.failures++
	metrics.MonitorPolls.WithLabelValues(m.plan.Symbol, "error").Inc()
	m.log.Warn("monitor_poll_failed",
		logger.String("symbol", m.plan.Symbol),
		logger.Int("consecutive", m.failures),
		logger.Err(err),
	)
	if m.failures >= m.cfg.MaxPollFailures {
		if errors.Is(err, types.ErrGateway) {
			return fmt.Errorf("%d consecutive polls failed: %w", m.failures, err)
		}
		return fmt.Errorf("%w: %d consecutive polls failed: %w", types.ErrGateway, m.failures, err)
	}
	return nil
}

func (m *PositionMonitor) latestPrice(ctx context.Context) (float64, error) {
	candles, err := m.md.GetKlines(ctx, m.cfg.Category, m.plan.Symbol, m.cfg.Interval, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("%w: no candle for %s", types.ErrGateway, m.plan.Symbol)
	}
	newest := candles[0]
	for _, c := range candles[1:] {
		if c.OpenTime.After(newest.OpenTime) {
			newest = c
		}
	}
	return newest.Close, nil
}

func (m *PositionMonitor) trendDown(ctx context.Context) (bool, float64, float64, error) {
	candles, err := m.md.GetKlines(ctx, m.cfg.Category, m.plan.Symbol, m.cfg.Interval, m.cfg.TrendCandles)
	if err != nil {
		return false, 0, 0, err
	}
	series, err := indicator.NewPriceSeries(m.plan.Symbol, m.cfg.Interval, candles)
	if err != nil {
		return false, 0, 0, err
	}
	return indicator.TrendDown(series, m.cfg.FastEMAPeriod, m.cfg.SlowEMAPeriod)
}

func (m *PositionMonitor) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}
