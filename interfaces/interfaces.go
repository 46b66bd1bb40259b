package interfaces

import (
	"time"

	"bandpilot/models"
)

// MarketDataProvider supplies candle series for one instrument. Candles are
// ordered oldest first; the last one may still be forming. Implementations
// return models.ErrDataUnavailable (possibly wrapped) when the upstream
// source cannot answer.
type MarketDataProvider interface {
	GetCandles(symbol, timeframe string, count int) ([]models.Candle, error)
}

// OrderGateway is the narrow execution capability the core depends on.
// Transport and authentication stay behind this boundary.
type OrderGateway interface {
	// PlaceStopEntry places a stop-entry order that activates once price
	// crosses triggerPrice and returns the gateway order id, or
	// models.ErrOrderRejected.
	PlaceStopEntry(symbol string, direction models.Direction, triggerPrice, qty float64) (string, error)

	// CancelOrder is idempotent: cancelling an already-filled or
	// already-cancelled order is a no-op.
	CancelOrder(symbol, orderID string) error

	// GetOrderStatus reports the current state of a pending order, or
	// models.ErrStaleFill when the query cannot be answered.
	GetOrderStatus(symbol, orderID string) (models.OrderStatus, error)

	// ClosePosition market-closes the open position and returns the fill price.
	ClosePosition(symbol string, direction models.Direction, qty float64) (float64, error)
}

// Notifier delivers plain-text status lines. Best-effort: failures are
// swallowed by implementations.
type Notifier interface {
	Send(text string)
}

// TradeLog appends closed trades to a durable journal. Best-effort.
type TradeLog interface {
	Append(result models.TradeResult) error
}

// Clock abstracts time so ticks are testable without real time passing.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall-clock implementation of Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
