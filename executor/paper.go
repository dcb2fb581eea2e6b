package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
)

var (
	errNoPrice          = errors.New("paper: no market price seen for symbol yet")
	errInsufficientCash = errors.New("paper: insufficient cash")
	errInsufficientQty  = errors.New("paper: insufficient position")
)

// PaperGateway trades against live market data with simulated fills: market
// orders fill at the last close it has seen, resting limit sells fill once
// a later close reaches their price. No slippage. A resting sell reserves
// its quantity until it fills or is cancelled.
type PaperGateway struct {
	feed     MarketData
	log      logger.Logger
	takerFee decimal.Decimal

	mu        sync.Mutex
	cash      float64
	positions map[string]float64
	avgPrice  map[string]float64
	lastPrice map[string]float64
	resting   map[string]types.Order
	reserved  map[string]float64
	seq       int
}

var _ Gateway = (*PaperGateway)(nil)

func NewPaperGateway(feed MarketData, startEquity float64, takerFee decimal.Decimal, log logger.Logger) *PaperGateway {
	return &PaperGateway{
		feed:      feed,
		log:       log,
		takerFee:  takerFee,
		cash:      startEquity,
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
		lastPrice: make(map[string]float64),
		resting:   make(map[string]types.Order),
		reserved:  make(map[string]float64),
	}
}

// GetKlines delegates to the feed and marks the newest close.
func (p *PaperGateway) GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]types.Candle, error) {
	candles, err := p.feed.GetKlines(ctx, category, symbol, interval, limit)
	if err != nil || len(candles) == 0 {
		return candles, err
	}
	newest := candles[0]
	for _, c := range candles[1:] {
		if c.OpenTime.After(newest.OpenTime) {
			newest = c
		}
	}
	p.mark(symbol, newest.Close)
	return candles, nil
}

func (p *PaperGateway) GetFeeRate(_ context.Context, category, symbol string) (types.FeeRates, error) {
	return types.FeeRates{
		Category: category,
		List:     []types.FeeRate{{Symbol: symbol, TakerFeeRate: p.takerFee, MakerFeeRate: p.takerFee}},
	}, nil
}

// GetWalletBalance reports cash plus positions marked at the last price.
func (p *PaperGateway) GetWalletBalance(context.Context) (types.WalletBalance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	eq := p.cash
	for sym, qty := range p.positions {
		eq += qty * p.lastPrice[sym]
	}
	return types.WalletBalance{Accounts: []types.WalletAccount{
		{AccountType: "PAPER", TotalEquity: decimal.NewFromFloat(eq)},
	}}, nil
}

func (p *PaperGateway) CreateOrder(_ context.Context, _ string, o types.Order) (types.OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !o.Qty.IsPositive() {
		return types.OrderAck{}, &types.APIError{Code: 170136, Msg: "order quantity must be positive"}
	}
	p.seq++
	id := "paper-" + strconv.Itoa(p.seq)
	ack := types.OrderAck{OrderID: id, OrderLinkID: o.LinkID}

	qty := o.Qty.InexactFloat64()
	if o.Side == types.Sell && qty > p.available(o.Symbol)+1e-12 {
		return types.OrderAck{}, &types.APIError{Code: 170131, Msg: "insufficient balance"}
	}
	if o.Type == types.Limit {
		p.resting[id] = o
		if o.Side == types.Sell {
			p.reserved[o.Symbol] += qty
		}
		return ack, nil
	}
	px, ok := p.lastPrice[o.Symbol]
	if !ok {
		return types.OrderAck{}, errNoPrice
	}
	if err := p.fill(o.Symbol, o.Side, qty, px); err != nil {
		return types.OrderAck{}, err
	}
	return ack, nil
}

func (p *PaperGateway) CancelOrder(_ context.Context, _, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.resting[orderID]
	if !ok || o.Symbol != symbol {
		return &types.APIError{Code: types.CodeSpotOrderNotFound, Msg: "order does not exist"}
	}
	p.release(orderID, o)
	return nil
}

// Position returns qty & avg price for a symbol.
func (p *PaperGateway) Position(symbol string) (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol], p.avgPrice[symbol]
}

// Reserved returns the quantity held by resting sells.
func (p *PaperGateway) Reserved(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved[symbol]
}

// Cash returns the uninvested balance.
func (p *PaperGateway) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *PaperGateway) mark(symbol string, px float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[symbol] = px
	for id, o := range p.resting {
		if o.Symbol != symbol || o.Side != types.Sell || px < o.Price.InexactFloat64() {
			continue
		}
		if err := p.fill(symbol, types.Sell, o.Qty.InexactFloat64(), o.Price.InexactFloat64()); err != nil {
			p.log.Warn("paper_limit_fill_skipped", logger.String("order_id", id), logger.Err(err))
			continue
		}
		p.release(id, o)
	}
}

// available is the position not held by resting sells. Callers hold p.mu.
func (p *PaperGateway) available(symbol string) float64 {
	return p.positions[symbol] - p.reserved[symbol]
}

// release drops a resting order and its reservation. Callers hold p.mu.
func (p *PaperGateway) release(id string, o types.Order) {
	delete(p.resting, id)
	if o.Side != types.Sell {
		return
	}
	p.reserved[o.Symbol] -= o.Qty.InexactFloat64()
	if p.reserved[o.Symbol] <= 1e-12 {
		delete(p.reserved, o.Symbol)
	}
}

// fill applies a trade with the taker fee charged on the notional.
// Callers hold p.mu.
func (p *PaperGateway) fill(symbol string, side types.Side, qty, px float64) error {
	cost := px * qty
	fee := cost * p.takerFee.InexactFloat64()
	if side == types.Buy {
		if cost+fee > p.cash {
			return errInsufficientCash
		}
		p.cash -= cost + fee
		p.positions[symbol] += qty
		// simple VWAP for avg price
		prev := p.avgPrice[symbol]
		p.avgPrice[symbol] = (prev*(p.positions[symbol]-qty) + cost) / p.positions[symbol]
	} else {
		if qty > p.positions[symbol]+1e-12 {
			return fmt.Errorf("%w: have %v, selling %v", errInsufficientQty, p.positions[symbol], qty)
		}
		p.cash += cost - fee
		p.positions[symbol] -= qty
		if p.positions[symbol] <= 1e-12 {
			p.positions[symbol] = 0
			p.avgPrice[symbol] = 0
		}
	}
	p.log.Info("paper_fill",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("qty", qty),
		logger.Float64("price", px),
		logger.Float64("cash", p.cash),
	)
	return nil
}
