package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientHistory is a caller error: fewer candles than the
	// requested lookback.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrNonMonotonicSeries is returned when two candles share an open time.
	ErrNonMonotonicSeries = errors.New("candle open times are not strictly monotonic")
	// ErrBelowMinimumOrderSize aborts an entry without placing orders.
	ErrBelowMinimumOrderSize = errors.New("quantity below instrument minimum")
	ErrOrderPlacementFailed  = errors.New("order placement failed")
	// ErrGateway covers transport and venue-reported failures of read calls.
	ErrGateway       = errors.New("gateway error")
	// ErrOrderNotFound means the venue no longer has the order open: it was
	// filled or cancelled already.
	ErrOrderNotFound = errors.New("order not found")
	ErrNoAccount     = errors.New("wallet balance lists no account")
	ErrInvalidConfig = errors.New("invalid config")
)

// APIError is a non-success retCode reported inside an otherwise healthy
// response body. It matches ErrGateway with errors.Is.
type APIError struct {
	Code int64
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue error %d: %s", e.Code, e.Msg)
}

// Venue codes for an order that is not open (spot and unified account).
const (
	CodeSpotOrderNotFound    = 170213
	CodeUnifiedOrderNotFound = 110001
)

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrGateway:
		return true
	case ErrOrderNotFound:
		return e.Code == CodeSpotOrderNotFound || e.Code == CodeUnifiedOrderNotFound
	}
	return false
}
