package tradelog

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"bandpilot/interfaces"
	"bandpilot/models"
)

// CSVLog is an append-only trade journal. One row per closed trade.
type CSVLog struct {
	path string
	mu   sync.Mutex
}

var _ interfaces.TradeLog = (*CSVLog)(nil)

// NewCSVLog creates the journal file with a header if it does not exist yet.
func NewCSVLog(path string) (*CSVLog, error) {
	if path == "" {
		return nil, errors.New("empty trade log path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(abs)
		if err != nil {
			return nil, err
		}
		w := csv.NewWriter(f)
		_ = w.Write([]string{"ts", "symbol", "side", "style", "qty", "entry", "exit", "pnl", "reason"})
		w.Flush()
		_ = f.Close()
	}
	return &CSVLog{path: abs}, nil
}

// Append writes one closed trade.
func (t *CSVLog) Append(r models.TradeResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	rec := []string{
		r.ClosedAt.UTC().Format(time.RFC3339), r.Symbol, string(r.Direction), string(r.Style),
		formatF(r.Qty), formatF(r.Entry), formatF(r.Exit), formatF(r.PnL), string(r.Reason),
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }
