package executor

import (
	"context"

	"github.com/evdnx/spotbot/types"
)

// MarketData is the unauthenticated part of the venue.
type MarketData interface {
	// GetKlines returns up to limit candles. Order is venue-defined;
	// indicator.NewPriceSeries normalises it.
	GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]types.Candle, error)
}

// Gateway is everything the strategy needs from a venue. Read failures
// match types.ErrGateway; a venue-reported non-success is a *types.APIError.
type Gateway interface {
	MarketData
	GetFeeRate(ctx context.Context, category, symbol string) (types.FeeRates, error)
	GetWalletBalance(ctx context.Context) (types.WalletBalance, error)
	CreateOrder(ctx context.Context, category string, o types.Order) (types.OrderAck, error)
	CancelOrder(ctx context.Context, category, symbol, orderID string) error
}
