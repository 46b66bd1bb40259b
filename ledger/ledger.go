package ledger

import (
	"fmt"
	"time"

	"bandpilot/internal/timeutil"
	"bandpilot/models"
)

// Ledger accumulates realized PnL per UTC trading day and gates further
// trading once the daily target or loss limit is reached. It is not
// internally locked: the owning trader serializes access.
type Ledger struct {
	symbol    string
	target    float64 // 0 disables the target gate
	lossLimit float64 // positive magnitude, 0 disables

	dayOpen   time.Time
	trades    []models.TradeResult
	total     float64
	targetHit bool
	lossHit   bool
}

// NewLedger starts an empty accumulation window for the day containing now.
func NewLedger(symbol string, target, lossLimit float64, now time.Time) *Ledger {
	return &Ledger{
		symbol:    symbol,
		target:    target,
		lossLimit: lossLimit,
		dayOpen:   timeutil.DayOpen(now),
	}
}

// DayKey identifies the current accumulation window.
func (l *Ledger) DayKey() string { return timeutil.DayKey(l.dayOpen) }

// RecordClose appends a closed trade. The target latch flips the moment
// cumulative PnL crosses the configured threshold and stays set until the
// next rollover.
func (l *Ledger) RecordClose(res models.TradeResult) {
	l.trades = append(l.trades, res)
	l.total += res.PnL
	if l.target > 0 && l.total >= l.target {
		l.targetHit = true
	}
	if l.lossLimit > 0 && l.total <= -l.lossLimit {
		l.lossHit = true
	}
}

// LimitReached reports whether either daily gate is latched.
func (l *Ledger) LimitReached() bool { return l.targetHit || l.lossHit }

// TargetHit reports whether the daily profit target was reached.
func (l *Ledger) TargetHit() bool { return l.targetHit }

// LossLimitHit reports whether the daily loss limit was breached.
func (l *Ledger) LossLimitHit() bool { return l.lossHit }

// TotalPnL returns cumulative realized PnL for the current day.
func (l *Ledger) TotalPnL() float64 { return l.total }

// TradeCount returns the number of closes recorded today.
func (l *Ledger) TradeCount() int { return len(l.trades) }

// RolloverIfNeeded clears the accumulator exactly once when now has crossed
// into a new UTC day, returning the summary of the window that just ended.
// Crossing several boundaries at once (a delayed loop) still clears once.
func (l *Ledger) RolloverIfNeeded(now time.Time) (models.DailySummary, bool) {
	if timeutil.SameUTCDay(l.dayOpen, now) {
		return models.DailySummary{}, false
	}
	summary := l.Summary()
	l.trades = nil
	l.total = 0
	l.targetHit = false
	l.lossHit = false
	l.dayOpen = timeutil.DayOpen(now)
	return summary, true
}

// Summary snapshots the current window.
func (l *Ledger) Summary() models.DailySummary {
	s := models.DailySummary{
		Day:       l.DayKey(),
		Trades:    len(l.trades),
		TotalPnL:  l.total,
		TargetHit: l.targetHit,
	}
	for _, t := range l.trades {
		if t.IsWin() {
			s.Wins++
		}
		if t.PnL > s.BiggestWin {
			s.BiggestWin = t.PnL
		}
		if t.PnL < s.BiggestLoss {
			s.BiggestLoss = t.PnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	return s
}

// FormatSummary renders the daily summary as the notifier text line.
func FormatSummary(symbol string, s models.DailySummary) string {
	target := "no"
	if s.TargetHit {
		target = "yes"
	}
	return fmt.Sprintf(
		"Daily summary %s (%s): trades=%d winrate=%.1f%% pnl=%.2f best=%.2f worst=%.2f target=%s",
		symbol, s.Day, s.Trades, s.WinRate, s.TotalPnL, s.BiggestWin, s.BiggestLoss, target,
	)
}
