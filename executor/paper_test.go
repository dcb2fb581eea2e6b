package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/evdnx/spotbot/testutils"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
)

type staticFeed struct{ candles []types.Candle }

func (f *staticFeed) GetKlines(context.Context, string, string, string, int) ([]types.Candle, error) {
	return f.candles, nil
}

func newPaper(t *testing.T, equity float64, price float64) (*PaperGateway, *staticFeed) {
	t.Helper()
	feed := &staticFeed{candles: testutils.FlatCandles(3, price, 10)}
	p := NewPaperGateway(feed, equity, decimal.Zero, testutils.NewMockLogger())
	if _, err := p.GetKlines(context.Background(), "spot", "BTCUSD", "5", 3); err != nil {
		t.Fatalf("klines: %v", err)
	}
	return p, feed
}

func TestPaperGateway_SubmitAndPosition(t *testing.T) {
	p, _ := newPaper(t, 10_000, 20_000)

	o := types.Order{Symbol: "BTCUSD", Side: types.Buy, Type: types.Market, Qty: decimal.RequireFromString("0.5")}
	if _, err := p.CreateOrder(context.Background(), "spot", o); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if cash := p.Cash(); cash != 0 {
		t.Fatalf("expected cash 0 after buying 0.5*20000, got %v", cash)
	}
	qty, avg := p.Position("BTCUSD")
	if qty != 0.5 || avg != 20_000 {
		t.Fatalf("unexpected position: qty=%v avg=%v", qty, avg)
	}
	wb, _ := p.GetWalletBalance(context.Background())
	if eq, _ := wb.Equity(); !eq.Equal(decimal.NewFromInt(10_000)) {
		t.Fatalf("equity should be marked to market, got %s", eq)
	}
}

func TestPaperGateway_InsufficientCash(t *testing.T) {
	p, _ := newPaper(t, 1000, 2000)
	o := types.Order{Symbol: "BTCUSD", Side: types.Buy, Type: types.Market, Qty: decimal.NewFromInt(1)}
	if _, err := p.CreateOrder(context.Background(), "spot", o); !errors.Is(err, errInsufficientCash) {
		t.Fatalf("expected insufficient cash, got %v", err)
	}
	if p.Cash() != 1000 {
		t.Fatal("cash should stay unchanged on insufficient cash")
	}
}

func TestPaperGateway_RestingLimitFillsOnMark(t *testing.T) {
	p, feed := newPaper(t, 1000, 100)
	ctx := context.Background()
	buy := types.Order{Symbol: "BTCUSD", Side: types.Buy, Type: types.Market, Qty: decimal.NewFromInt(2)}
	if _, err := p.CreateOrder(ctx, "spot", buy); err != nil {
		t.Fatal(err)
	}
	tp := types.Order{Symbol: "BTCUSD", Side: types.Sell, Type: types.Limit, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(104)}
	if _, err := p.CreateOrder(ctx, "spot", tp); err != nil {
		t.Fatal(err)
	}
	feed.candles = testutils.FlatCandles(1, 105, 10)
	if _, err := p.GetKlines(ctx, "spot", "BTCUSD", "5", 1); err != nil {
		t.Fatal(err)
	}
	if qty, _ := p.Position("BTCUSD"); qty != 0 {
		t.Fatalf("limit sell should have filled, position %v", qty)
	}
	if p.Cash() != 1008 {
		t.Fatalf("expected cash 800 + 2*104, got %v", p.Cash())
	}
}

func TestPaperGateway_MarketWithoutPrice(t *testing.T) {
	p := NewPaperGateway(&staticFeed{}, 100, decimal.Zero, testutils.NewMockLogger())
	o := types.Order{Symbol: "ETHUSD", Side: types.Buy, Type: types.Market, Qty: decimal.NewFromInt(1)}
	if _, err := p.CreateOrder(context.Background(), "spot", o); !errors.Is(err, errNoPrice) {
		t.Fatalf("expected errNoPrice, got %v", err)
	}
}

func TestPaperGateway_CancelUnknown(t *testing.T) {
	p, _ := newPaper(t, 100, 10)
	if err := p.CancelOrder(context.Background(), "spot", "BTCUSD", "nope"); !errors.Is(err, types.ErrGateway) {
		t.Fatalf("expected venue error, got %v", err)
	}
}

func TestPaperGateway_RestingSellReservesQuantity(t *testing.T) {
	p, _ := newPaper(t, 1000, 100)
	ctx := context.Background()
	buy := types.Order{Symbol: "BTCUSD", Side: types.Buy, Type: types.Market, Qty: decimal.NewFromInt(2)}
	if _, err := p.CreateOrder(ctx, "spot", buy); err != nil {
		t.Fatal(err)
	}
	tp := types.Order{Symbol: "BTCUSD", Side: types.Sell, Type: types.Limit, Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(104)}
	ack, err := p.CreateOrder(ctx, "spot", tp)
	if err != nil {
		t.Fatal(err)
	}
	if p.Reserved("BTCUSD") != 2 {
		t.Fatalf("expected 2 reserved, got %v", p.Reserved("BTCUSD"))
	}

	sell := types.Order{Symbol: "BTCUSD", Side: types.Sell, Type: types.Market, Qty: decimal.RequireFromString("0.5")}
	_, err = p.CreateOrder(ctx, "spot", sell)
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 170131 {
		t.Fatalf("market sell against reserved quantity should be rejected, got %v", err)
	}
	second := tp
	second.Qty = decimal.NewFromInt(1)
	if _, err := p.CreateOrder(ctx, "spot", second); !errors.Is(err, types.ErrGateway) {
		t.Fatalf("second limit sell should be rejected, got %v", err)
	}

	if err := p.CancelOrder(ctx, "spot", "BTCUSD", ack.OrderID); err != nil {
		t.Fatal(err)
	}
	if p.Reserved("BTCUSD") != 0 {
		t.Fatalf("cancel should release the reservation, got %v", p.Reserved("BTCUSD"))
	}
	if _, err := p.CreateOrder(ctx, "spot", sell); err != nil {
		t.Fatalf("sell after cancel: %v", err)
	}
	if qty, _ := p.Position("BTCUSD"); qty != 1.5 {
		t.Fatalf("expected 1.5 left, got %v", qty)
	}
}
