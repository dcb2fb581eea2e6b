package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/executor"
	"github.com/evdnx/spotbot/indicator"
	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/metrics"
	"github.com/evdnx/spotbot/risk"
	"github.com/evdnx/spotbot/types"
)

// Controller runs the pipeline for one symbol: fetch, compute, decide,
// size, enter, monitor. One Run handles at most one position and shares no
// state with other runs.
type Controller struct {
	gw    executor.Gateway
	ex    *executor.OrderExecutor
	cfg   config.StrategyConfig
	clock Clock
	log   logger.Logger

	reference func(*indicator.PriceSeries) (indicator.Reference, error)
}

// NewController validates the config before anything touches the venue.
func NewController(gw executor.Gateway, cfg config.StrategyConfig, clock Clock, log logger.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		gw:    gw,
		ex:    executor.NewOrderExecutor(gw, cfg, log),
		cfg:   cfg,
		clock: clock,
		log:   log,

		reference: indicator.ReferenceOscillators,
	}, nil
}

// Run executes one pass. "No signal" and a quantity below the instrument
// minimum are successful outcomes. Every error is logged here before it is
// returned.
func (c *Controller) Run(ctx context.Context, symbol string, constraint types.InstrumentConstraint) error {
	err := c.run(ctx, symbol, constraint)
	if err != nil {
		c.log.Error("strategy_failed", logger.String("symbol", symbol), logger.Err(err))
	}
	return err
}

func (c *Controller) run(ctx context.Context, symbol string, constraint types.InstrumentConstraint) error {
	fees, err := c.gw.GetFeeRate(ctx, c.cfg.Category, symbol)
	if err != nil {
		return gatewayErr("fee rate", err)
	}
	candles, err := c.gw.GetKlines(ctx, c.cfg.Category, symbol, c.cfg.Interval, c.cfg.EntryCandles)
	if err != nil {
		return gatewayErr("klines", err)
	}
	series, err := indicator.NewPriceSeries(symbol, c.cfg.Interval, candles)
	if err != nil {
		return err
	}
	snap, err := indicator.Compute(series, indicator.PeriodsFrom(c.cfg))
	if err != nil {
		return err
	}
	in, err := InputsFrom(series, snap, c.cfg)
	if err != nil {
		return err
	}
	sig := Evaluate(in, c.cfg)

	fields := append([]logger.Field{logger.String("symbol", symbol)}, sig.Fields()...)
	fields = append(fields, logger.Stringer("round_trip_fee", fees.RoundTrip()))
	if ref, err := c.reference(series); err != nil {
		c.log.Warn("reference_unavailable", logger.String("symbol", symbol), logger.Err(err))
	} else {
		fields = append(fields,
			logger.Float64("ref_rsi", ref.RSI),
			logger.Float64("ref_mfi", ref.MFI),
			logger.Bool("ref_hma_bullish", ref.HMABullish),
		)
	}
	c.log.Info("market_analysis", fields...)

	if !sig.Enter {
		metrics.Signals.WithLabelValues(symbol, "skip").Inc()
		c.log.Info("no_signal", logger.String("symbol", symbol))
		return nil
	}
	metrics.Signals.WithLabelValues(symbol, "enter").Inc()

	wallet, err := c.gw.GetWalletBalance(ctx)
	if err != nil {
		return gatewayErr("wallet balance", err)
	}
	equity, err := wallet.Equity()
	if err != nil {
		return gatewayErr("wallet balance", err)
	}
	metrics.EquityGauge.Set(equity.InexactFloat64())

	sizing, err := risk.Size(equity, snap.ATR, constraint, risk.Params{
		MaxRisk:           c.cfg.MaxRiskPerTrade,
		StopATRMultiple:   c.cfg.StopATRMultiple,
		QuantityPrecision: c.cfg.QuantityPrecision,
	})
	if errors.Is(err, types.ErrBelowMinimumOrderSize) {
		c.log.Warn("below_minimum_order_size",
			logger.String("symbol", symbol),
			logger.Stringer("qty", sizing.Qty),
			logger.Stringer("min_qty", constraint.MinOrderQty),
			logger.Stringer("equity", equity),
		)
		return nil
	}
	if err != nil {
		return err
	}
	c.log.Info("position_sized",
		logger.String("symbol", symbol),
		logger.Stringer("equity", equity),
		logger.Float64("risk_amount", sizing.RiskAmount),
		logger.Float64("stop_distance", sizing.StopDistance),
		logger.Stringer("qty", sizing.Qty),
	)

	plan, filled, entryErr := c.ex.Enter(ctx, symbol, in.Price, sizing)
	if !filled {
		return entryErr
	}
	if entryErr != nil {
		c.log.Error("take_profit_failed", logger.String("symbol", symbol), logger.Err(entryErr))
	}
	plan.RoundTripFee = fees.RoundTrip()

	mon := NewPositionMonitor(c.gw, c.ex, plan, c.cfg, c.clock, c.log)
	if err := mon.Run(ctx); err != nil {
		if errors.Is(err, types.ErrOrderPlacementFailed) {
			c.log.Error("position_unmanaged",
				logger.String("symbol", symbol),
				logger.Stringer("qty", mon.Plan().Quantity),
				logger.Err(err),
			)
		}
		return err
	}
	return entryErr
}

func gatewayErr(op string, err error) error {
	if errors.Is(err, types.ErrGateway) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrGateway, op, err)
}
