package testutils

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/evdnx/spotbot/types"
	"github.com/shopspring/decimal"
)

// RecordedOrder is an order the mock accepted or rejected.
type RecordedOrder struct {
	Category string
	Order    types.Order
	Err      error
}

// MockGateway implements the venue in-memory. Behaviour is scripted through
// the exported hooks; every call is recorded for assertions.
type MockGateway struct {
	mu sync.Mutex

	// Klines answers GetKlines. ScriptPrices installs a common one.
	Klines func(symbol string, limit int) ([]types.Candle, error)
	// OrderErr, when set, decides the outcome of the n-th CreateOrder call
	// (0-based).
	OrderErr  func(o types.Order, n int) error
	CancelErr error
	// BlankOrderIDs acks accepted orders without an order id.
	BlankOrderIDs bool

	Fees      types.FeeRates
	FeeErr    error
	Equity    decimal.Decimal
	WalletErr error

	klineCalls []int
	orders     []RecordedOrder
	cancels    []string
	seq        int
}

// NewMockGateway creates a gateway reporting the supplied equity and a
// 0.1 % taker fee.
func NewMockGateway(equity float64) *MockGateway {
	return &MockGateway{
		Equity: decimal.NewFromFloat(equity),
		Fees: types.FeeRates{Category: "spot", List: []types.FeeRate{
			{Symbol: "TEST", TakerFeeRate: decimal.RequireFromString("0.001"), MakerFeeRate: decimal.RequireFromString("0.001")},
		}},
	}
}

func (m *MockGateway) GetKlines(_ context.Context, _, symbol, _ string, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	m.klineCalls = append(m.klineCalls, limit)
	fn := m.Klines
	m.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(symbol, limit)
}

func (m *MockGateway) GetFeeRate(_ context.Context, _, _ string) (types.FeeRates, error) {
	if m.FeeErr != nil {
		return types.FeeRates{}, m.FeeErr
	}
	return m.Fees, nil
}

func (m *MockGateway) GetWalletBalance(context.Context) (types.WalletBalance, error) {
	if m.WalletErr != nil {
		return types.WalletBalance{}, m.WalletErr
	}
	return types.WalletBalance{Accounts: []types.WalletAccount{{AccountType: "UNIFIED", TotalEquity: m.Equity}}}, nil
}

func (m *MockGateway) CreateOrder(_ context.Context, category string, o types.Order) (types.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.OrderErr != nil {
		err = m.OrderErr(o, len(m.orders))
	}
	m.orders = append(m.orders, RecordedOrder{Category: category, Order: o, Err: err})
	if err != nil {
		return types.OrderAck{}, err
	}
	m.seq++
	if m.BlankOrderIDs {
		return types.OrderAck{OrderLinkID: o.LinkID}, nil
	}
	return types.OrderAck{OrderID: "mock-" + strconv.Itoa(m.seq), OrderLinkID: o.LinkID}, nil
}

func (m *MockGateway) CancelOrder(_ context.Context, _, _, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, orderID)
	return m.CancelErr
}

// Orders returns the orders the venue accepted, in call order.
func (m *MockGateway) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Order
	for _, r := range m.orders {
		if r.Err == nil {
			out = append(out, r.Order)
		}
	}
	return out
}

// Attempts returns every CreateOrder call including rejected ones.
func (m *MockGateway) Attempts() []RecordedOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedOrder, len(m.orders))
	copy(out, m.orders)
	return out
}

// Cancels returns the ids passed to CancelOrder.
func (m *MockGateway) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancels...)
}

// KlineCalls returns the limit argument of every GetKlines call.
func (m *MockGateway) KlineCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.klineCalls...)
}

// ScriptPrices makes single-candle requests walk through prices (the last
// one repeats) and answers every other request with trend.
func (m *MockGateway) ScriptPrices(prices []float64, trend []types.Candle) {
	var i int
	var mu sync.Mutex
	m.Klines = func(_ string, limit int) ([]types.Candle, error) {
		if limit != 1 {
			return trend, nil
		}
		mu.Lock()
		defer mu.Unlock()
		px := prices[len(prices)-1]
		if i < len(prices) {
			px = prices[i]
		}
		i++
		return []types.Candle{{OpenTime: time.Unix(int64(i)*300, 0), Open: px, High: px, Low: px, Close: px}}, nil
	}
}
