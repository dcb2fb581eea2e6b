package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/executor"
	"github.com/evdnx/spotbot/indicator"
	"github.com/evdnx/spotbot/testutils"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
)

// pullbackCandles is an uptrend from 100 to 130 followed by 14 alternating
// steps of -1.5 / +1 ending at 126.5, newest-first. With the default
// config: EMA9 ~126.6 > EMA21 ~125.0, RSI 40, ATR 2.25, volume 150 over an
// average of 102.5, 10-candle low 125.5.
func pullbackCandles() []types.Candle {
	var bars []testutils.Bar
	c := 100.0
	for i := 0; i < 16; i++ {
		c = 100 + 2*float64(i)
		bars = append(bars, testutils.Bar{High: c + 1, Low: c - 1, Close: c, Volume: 100})
	}
	for s := 0; s < 14; s++ {
		if s%2 == 0 {
			c -= 1.5
		} else {
			c++
		}
		bars = append(bars, testutils.Bar{High: c + 1, Low: c - 1, Close: c, Volume: 100})
	}
	bars[len(bars)-1].Volume = 150
	return testutils.Reverse(testutils.CandlesFromBars(bars))
}

func btc(minQty string) types.InstrumentConstraint {
	return types.InstrumentConstraint{Symbol: "BTCUSDT", MinOrderQty: decimal.RequireFromString(minQty)}
}

func newController(t *testing.T, gw *testutils.MockGateway) (*Controller, *testutils.MockLogger) {
	t.Helper()
	log := testutils.NewMockLogger()
	c, err := NewController(gw, config.Default(), testutils.NewFakeClock(testutils.Epoch), log)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, log
}

func TestController_FlatMarketNoEntry(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	flat := testutils.Reverse(testutils.FlatCandles(30, 100, 100))
	gw.Klines = func(string, int) ([]types.Candle, error) { return flat, nil }
	c, log := newController(t, gw)

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.000001")); err != nil {
		t.Fatalf("no signal is a success, got %v", err)
	}
	if len(gw.Attempts()) != 0 {
		t.Fatal("no order may be placed without a signal")
	}
	if !log.Has("info", "no_signal") {
		t.Fatal("no_signal should be logged")
	}
	f, ok := log.Field("market_analysis", "volatile")
	if !ok || f.Integer != 0 {
		t.Fatal("the volatility filter should be the blocker")
	}
	if calls := gw.KlineCalls(); len(calls) != 1 || calls[0] != 30 {
		t.Fatalf("expected one 30-candle fetch, got %v", calls)
	}
}

func TestController_EntryThroughStopExit(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.ScriptPrices([]float64{121}, pullbackCandles())
	c, log := newController(t, gw)

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.0001")); err != nil {
		t.Fatalf("run: %v", err)
	}
	orders := gw.Orders()
	if len(orders) != 3 {
		t.Fatalf("expected buy, take-profit, exit; got %d orders", len(orders))
	}
	buy, tp, exit := orders[0], orders[1], orders[2]
	// equity 10 000 * 1 % / (2 * ATR 2.25)
	if buy.Side != types.Buy || buy.Type != types.Market || buy.Qty.String() != "22.222222" {
		t.Fatalf("unexpected entry: %+v", buy)
	}
	if tp.Type != types.Limit || tp.Price.String() != "135.5" {
		t.Fatalf("unexpected take-profit: %+v", tp)
	}
	if exit.Side != types.Sell || exit.Type != types.Market || !exit.Qty.Equal(buy.Qty) {
		t.Fatalf("unexpected exit: %+v", exit)
	}
	if cancels := gw.Cancels(); len(cancels) != 1 || cancels[0] != "mock-2" {
		t.Fatalf("take-profit should be cancelled before the exit, got %v", cancels)
	}
	if f, ok := log.Field("position_closed", "reason"); !ok || f.String != string(ExitStopLoss) {
		t.Fatal("expected a stop-loss close")
	}
}

func TestController_BelowMinimumIsSuccess(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.ScriptPrices([]float64{121}, pullbackCandles())
	c, log := newController(t, gw)

	if err := c.Run(context.Background(), "BTCUSDT", btc("1000")); err != nil {
		t.Fatalf("below minimum should not fail the run, got %v", err)
	}
	if len(gw.Attempts()) != 0 {
		t.Fatal("no order may be placed below the minimum")
	}
	if !log.Has("warn", "below_minimum_order_size") {
		t.Fatal("skip should be logged")
	}
}

func TestController_GatewayErrorFailsRun(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.FeeErr = errors.New("connection refused")
	c, log := newController(t, gw)

	err := c.Run(context.Background(), "BTCUSDT", btc("0.0001"))
	if !errors.Is(err, types.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if !log.Has("error", "strategy_failed") {
		t.Fatal("the controller logs every failure")
	}
}

func TestController_InsufficientHistory(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	short := testutils.FlatCandles(10, 100, 100)
	gw.Klines = func(string, int) ([]types.Candle, error) { return short, nil }
	c, _ := newController(t, gw)

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.0001")); !errors.Is(err, types.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestController_EntryBuyFailure(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.ScriptPrices([]float64{121}, pullbackCandles())
	gw.OrderErr = func(types.Order, int) error { return &types.APIError{Code: 10001, Msg: "params error"} }
	c, _ := newController(t, gw)

	err := c.Run(context.Background(), "BTCUSDT", btc("0.0001"))
	if !errors.Is(err, types.ErrOrderPlacementFailed) {
		t.Fatalf("expected ErrOrderPlacementFailed, got %v", err)
	}
	if len(gw.Attempts()) != 1 {
		t.Fatalf("entry must abort after the failed buy, got %d attempts", len(gw.Attempts()))
	}
}

func TestController_TakeProfitFailureStillMonitors(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.ScriptPrices([]float64{121}, pullbackCandles())
	gw.OrderErr = func(_ types.Order, n int) error {
		if n == 1 {
			return errors.New("timeout")
		}
		return nil
	}
	c, log := newController(t, gw)

	err := c.Run(context.Background(), "BTCUSDT", btc("0.0001"))
	if !errors.Is(err, types.ErrOrderPlacementFailed) {
		t.Fatalf("run should report the take-profit failure, got %v", err)
	}
	if len(gw.Orders()) != 2 {
		t.Fatalf("expected buy and monitor exit, got %d orders", len(gw.Orders()))
	}
	if len(gw.Cancels()) != 0 {
		t.Fatal("there is no resting take-profit to cancel")
	}
	if !log.Has("info", "position_closed") {
		t.Fatal("the position should still be managed")
	}
}

func TestController_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.FastEMAPeriod = 30
	if _, err := NewController(testutils.NewMockGateway(0), cfg, RealClock(), testutils.NewMockLogger()); !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestController_EntryWithoutOrderIDIsMonitored(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	gw.ScriptPrices([]float64{121}, pullbackCandles())
	gw.BlankOrderIDs = true
	c, log := newController(t, gw)

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.0001")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gw.Orders()) != 3 {
		t.Fatalf("expected buy, take-profit and exit, got %d orders", len(gw.Orders()))
	}
	if !log.Has("info", "position_closed") {
		t.Fatal("an acked buy must be monitored even without an order id")
	}
}

func TestController_TakeProfitFilledOnPaper(t *testing.T) {
	feed := testutils.NewMockGateway(0)
	feed.ScriptPrices([]float64{140}, pullbackCandles())
	log := testutils.NewMockLogger()
	paper := executor.NewPaperGateway(feed, 10_000, decimal.Zero, log)
	c, err := NewController(paper, config.Default(), testutils.NewFakeClock(testutils.Epoch), log)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.0001")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if qty, _ := paper.Position("BTCUSDT"); qty != 0 {
		t.Fatalf("the take-profit should have sold everything, %v left", qty)
	}
	if log.Has("error", "position_unmanaged") {
		t.Fatal("a filled take-profit is not an unmanaged position")
	}
	if f, ok := log.Field("position_closed", "reason"); !ok || f.String != string(ExitTakeProfit) {
		t.Fatal("expected a take-profit close")
	}
	// 10 000 - 22.222222 * 126.5 + 22.222222 * 135.5
	if cash := paper.Cash(); math.Abs(cash-10_199.999998) > 1e-6 {
		t.Fatalf("unexpected cash %v", cash)
	}
}

func TestController_ReferenceFailureIsLogged(t *testing.T) {
	gw := testutils.NewMockGateway(10_000)
	flat := testutils.Reverse(testutils.FlatCandles(30, 100, 100))
	gw.Klines = func(string, int) ([]types.Candle, error) { return flat, nil }
	c, log := newController(t, gw)
	c.reference = func(*indicator.PriceSeries) (indicator.Reference, error) {
		return indicator.Reference{}, errors.New("not enough data")
	}

	if err := c.Run(context.Background(), "BTCUSDT", btc("0.0001")); err != nil {
		t.Fatalf("the reference oscillators never fail a run, got %v", err)
	}
	if !log.Has("warn", "reference_unavailable") {
		t.Fatal("reference failure should be logged")
	}
	if _, ok := log.Field("market_analysis", "ref_rsi"); ok {
		t.Fatal("no reference values without a reference")
	}
}
