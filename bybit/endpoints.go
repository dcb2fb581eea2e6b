package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/evdnx/spotbot/executor"
	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const (
	pathKline       = "/v5/market/kline"
	pathInstruments = "/v5/market/instruments-info"
	pathFeeRate     = "/v5/account/fee-rate"
	pathWallet      = "/v5/account/wallet-balance"
	pathCreateOrder = "/v5/order/create"
	pathCancelOrder = "/v5/order/cancel"
)

var _ executor.Gateway = (*Client)(nil)

// GetKlines returns candles as the venue sends them, newest-first. Each row
// is [startMs, open, high, low, close, volume, turnover].
func (c *Client) GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]types.Candle, error) {
	res, err := c.do(ctx, request{
		method: fasthttp.MethodGet,
		path:   pathKline,
		query: [][2]string{
			{"category", category},
			{"symbol", symbol},
			{"interval", interval},
			{"limit", strconv.Itoa(limit)},
		},
	})
	if err != nil {
		return nil, err
	}
	rows := res.Get("list").Array()
	candles := make([]types.Candle, 0, len(rows))
	for _, v := range rows {
		row := v.Array()
		if len(row) < 7 {
			return nil, decodeErr(pathKline, "row", fmt.Errorf("%d columns", len(row)))
		}
		candles = append(candles, types.Candle{
			OpenTime: time.UnixMilli(row[0].Int()).UTC(),
			Open:     row[1].Float(),
			High:     row[2].Float(),
			Low:      row[3].Float(),
			Close:    row[4].Float(),
			Volume:   row[5].Float(),
			Turnover: row[6].Float(),
		})
	}
	return candles, nil
}

func (c *Client) GetFeeRate(ctx context.Context, category, symbol string) (types.FeeRates, error) {
	q := [][2]string{{"category", category}}
	if symbol != "" {
		q = append(q, [2]string{"symbol", symbol})
	}
	res, err := c.do(ctx, request{method: fasthttp.MethodGet, path: pathFeeRate, query: q, signed: true})
	if err != nil {
		return types.FeeRates{}, err
	}
	out := types.FeeRates{Category: category}
	for _, v := range res.Get("list").Array() {
		taker, err := decimalField(v, "takerFeeRate")
		if err != nil {
			return types.FeeRates{}, decodeErr(pathFeeRate, "takerFeeRate", err)
		}
		maker, err := decimalField(v, "makerFeeRate")
		if err != nil {
			return types.FeeRates{}, decodeErr(pathFeeRate, "makerFeeRate", err)
		}
		out.List = append(out.List, types.FeeRate{Symbol: v.Get("symbol").String(), TakerFeeRate: taker, MakerFeeRate: maker})
	}
	return out, nil
}

func (c *Client) GetWalletBalance(ctx context.Context) (types.WalletBalance, error) {
	res, err := c.do(ctx, request{
		method: fasthttp.MethodGet,
		path:   pathWallet,
		query:  [][2]string{{"accountType", c.accountType}},
		signed: true,
	})
	if err != nil {
		return types.WalletBalance{}, err
	}
	var out types.WalletBalance
	for _, v := range res.Get("list").Array() {
		eq, err := decimalField(v, "totalEquity")
		if err != nil {
			return types.WalletBalance{}, decodeErr(pathWallet, "totalEquity", err)
		}
		out.Accounts = append(out.Accounts, types.WalletAccount{AccountType: v.Get("accountType").String(), TotalEquity: eq})
	}
	return out, nil
}

type createOrderBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

func (c *Client) CreateOrder(ctx context.Context, category string, o types.Order) (types.OrderAck, error) {
	b := createOrderBody{
		Category:    category,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		OrderType:   string(o.Type),
		Qty:         o.Qty.String(),
		OrderLinkID: o.LinkID,
	}
	if o.Type == types.Limit {
		b.Price = o.Price.String()
	}
	body, err := json.Marshal(b)
	if err != nil {
		return types.OrderAck{}, err
	}
	res, err := c.do(ctx, request{method: fasthttp.MethodPost, path: pathCreateOrder, body: body, signed: true})
	if err != nil {
		return types.OrderAck{}, err
	}
	return types.OrderAck{
		OrderID:     res.Get("orderId").String(),
		OrderLinkID: res.Get("orderLinkId").String(),
	}, nil
}

type cancelOrderBody struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

func (c *Client) CancelOrder(ctx context.Context, category, symbol, orderID string) error {
	body, err := json.Marshal(cancelOrderBody{Category: category, Symbol: symbol, OrderID: orderID})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: fasthttp.MethodPost, path: pathCancelOrder, body: body, signed: true})
	return err
}

// GetInstrument reads the lot-size floor of one symbol.
func (c *Client) GetInstrument(ctx context.Context, category, symbol string) (types.InstrumentConstraint, error) {
	res, err := c.do(ctx, request{
		method: fasthttp.MethodGet,
		path:   pathInstruments,
		query:  [][2]string{{"category", category}, {"symbol", symbol}},
	})
	if err != nil {
		return types.InstrumentConstraint{}, err
	}
	first := res.Get("list.0")
	if !first.Exists() {
		return types.InstrumentConstraint{}, fmt.Errorf("%w: %s %s is not listed", types.ErrGateway, category, symbol)
	}
	minQty, err := decimalField(first, "lotSizeFilter.minOrderQty")
	if err != nil {
		return types.InstrumentConstraint{}, decodeErr(pathInstruments, "minOrderQty", err)
	}
	return types.InstrumentConstraint{Symbol: first.Get("symbol").String(), MinOrderQty: minQty}, nil
}

// decimalField parses a string-encoded decimal. An empty string is zero;
// the venue sends "" for fields that do not apply to the account.
func decimalField(v gjson.Result, path string) (decimal.Decimal, error) {
	s := v.Get(path).String()
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
