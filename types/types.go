package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

type OrderType string

const (
	Market OrderType = "Market"
	Limit  OrderType = "Limit"
)

// Order is the request handed to a gateway. Price is only sent for limit
// orders; a zero price means market.
type Order struct {
	Symbol string
	Side   Side
	Type   OrderType
	Qty    decimal.Decimal
	Price  decimal.Decimal
	// meta
	LinkID  string
	Comment string
}

// OrderAck is what the venue returns for a placed order. The engine keeps
// nothing else about an order once it has been accepted.
type OrderAck struct {
	OrderID     string
	OrderLinkID string
}

// Candle is one interval of market data. Values are immutable once fetched.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
}

// FeeRate is a single row of the fee-rate listing.
type FeeRate struct {
	Symbol       string
	TakerFeeRate decimal.Decimal
	MakerFeeRate decimal.Decimal
}

type FeeRates struct {
	Category string
	List     []FeeRate
}

// RoundTrip is the taker fee paid on entry plus exit for the first listed
// symbol, or zero when the venue returned nothing.
func (f FeeRates) RoundTrip() decimal.Decimal {
	if len(f.List) == 0 {
		return decimal.Zero
	}
	return f.List[0].TakerFeeRate.Mul(decimal.NewFromInt(2))
}

type WalletAccount struct {
	AccountType string
	TotalEquity decimal.Decimal
}

type WalletBalance struct {
	Accounts []WalletAccount
}

// Equity returns the total equity of the first account. The venue lists the
// unified account first, which is the one the strategy trades from.
func (w WalletBalance) Equity() (decimal.Decimal, error) {
	if len(w.Accounts) == 0 {
		return decimal.Zero, ErrNoAccount
	}
	return w.Accounts[0].TotalEquity, nil
}

// InstrumentConstraint carries the venue limits the sizer has to respect.
type InstrumentConstraint struct {
	Symbol      string          `json:"symbol"`
	MinOrderQty decimal.Decimal `json:"minOrderQty"`
}

// PositionPlan is computed once at entry. Only the position monitor mutates
// it afterwards (quantity on partial close, stop on break-even).
type PositionPlan struct {
	Symbol          string
	EntryOrderID    string
	TakeProfitID    string
	EntryPrice      float64
	Quantity        decimal.Decimal
	StopPrice       float64
	TakeProfitPrice float64
	RoundTripFee    decimal.Decimal
}
