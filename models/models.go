package models

import (
	"time"
)

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// TradeStyle distinguishes trend-following entries from mean-reversion entries.
type TradeStyle string

const (
	Trend    TradeStyle = "trend"
	Reversal TradeStyle = "reversal"
)

// PositionState is the lifecycle state of the single position slot.
type PositionState int

const (
	Idle PositionState = iota
	Pending
	Open
	Closed
)

func (s PositionState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Pending:
		return "Pending"
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Candle represents a single OHLC interval. Confirmed is false for the most
// recent, still-forming interval whose close is live price.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Confirmed bool
}

// IndicatorSnapshot holds the computed indicator values for the latest candle
// of one timeframe.
type IndicatorSnapshot struct {
	Timeframe string
	Time      time.Time
	Open      float64
	Close     float64
	RSI       float64
	BBMid     float64
	BBHigh    float64
	BBLow     float64
}

// TradeIntent is the classifier's output when a signal fires.
type TradeIntent struct {
	Direction      Direction
	Style          TradeStyle
	ReferencePrice float64
}

// Position is the single position slot owned by the lifecycle manager.
type Position struct {
	State           PositionState
	Direction       Direction
	Style           TradeStyle
	Qty             float64
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	TrailingPeak    float64
	TrailingPercent float64
	PendingOrderID  string
	PendingSince    time.Time
	OpenedAt        time.Time
}

// OrderState is the gateway-reported state of a pending stop-entry order.
type OrderState int

const (
	OrderPending OrderState = iota
	OrderFilled
	OrderCancelled
)

// OrderStatus is returned by the gateway status query. FillPrice is only
// meaningful when State is OrderFilled.
type OrderStatus struct {
	State     OrderState
	FillPrice float64
}

// CloseReason names why an open position was exited.
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "stop loss hit"
	ReasonTakeProfit   CloseReason = "take profit hit"
	ReasonTrailingStop CloseReason = "trailing stop hit"
)

// TradeResult describes one closed trade handed to the ledger and journal.
type TradeResult struct {
	Symbol    string
	Direction Direction
	Style     TradeStyle
	Qty       float64
	Entry     float64
	Exit      float64
	PnL       float64
	Reason    CloseReason
	ClosedAt  time.Time
}

// IsWin reports whether the trade realized a profit.
func (r TradeResult) IsWin() bool { return r.PnL > 0 }

// DailySummary is produced by the ledger at day rollover.
type DailySummary struct {
	Day         string
	Trades      int
	Wins        int
	WinRate     float64
	TotalPnL    float64
	BiggestWin  float64
	BiggestLoss float64
	TargetHit   bool
}
