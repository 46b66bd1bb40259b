package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bandpilot/internal/timeutil"
	"bandpilot/models"
)

// Snapshot is the durable form of one day's ledger, persisted so a restart
// mid-day does not forget latched gates or recorded trades.
type Snapshot struct {
	Symbol    string               `json:"symbol"`
	DayKey    string               `json:"day_key"`
	Trades    []models.TradeResult `json:"trades"`
	TotalPnL  float64              `json:"total_pnl"`
	TargetHit bool                 `json:"target_hit"`
	LossHit   bool                 `json:"loss_hit"`
}

// Save writes the ledger snapshot atomically (write temp, then rename).
func Save(path string, l *Ledger) error {
	snap := Snapshot{
		Symbol:    l.symbol,
		DayKey:    l.DayKey(),
		Trades:    l.trades,
		TotalPnL:  l.total,
		TargetHit: l.targetHit,
		LossHit:   l.lossHit,
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// Restore loads a snapshot into a fresh ledger. A snapshot from a previous
// day is ignored so the new day starts clean.
func Restore(path, symbol string, target, lossLimit float64, now time.Time) (*Ledger, error) {
	l := NewLedger(symbol, target, lossLimit, now)

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return l, fmt.Errorf("parse ledger snapshot: %w", err)
	}
	if snap.Symbol != symbol || snap.DayKey != timeutil.DayKey(now) {
		return l, nil
	}

	l.trades = snap.Trades
	l.total = snap.TotalPnL
	l.targetHit = snap.TargetHit
	l.lossHit = snap.LossHit
	return l, nil
}
