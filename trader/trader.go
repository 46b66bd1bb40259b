package trader

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bandpilot/config"
	"bandpilot/interfaces"
	"bandpilot/internal/timeutil"
	"bandpilot/ledger"
	"bandpilot/logging"
	"bandpilot/models"
	"bandpilot/position"
	"bandpilot/risk"
	"bandpilot/strategy"
)

var (
	metricTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_ticks_total", Help: "Decision loop ticks run"},
		[]string{"symbol"})
	metricDataErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_data_errors_total", Help: "Ticks skipped because market data was unavailable"},
		[]string{"symbol"})
	metricEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_entries_placed_total", Help: "Stop-entry orders placed"},
		[]string{"symbol"})
	metricFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_fills_total", Help: "Entry orders confirmed filled"},
		[]string{"symbol"})
	metricCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bot_closes_total", Help: "Positions closed, by reason"},
		[]string{"symbol", "reason"})
	metricDailyPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_daily_pnl", Help: "Cumulative realized PnL for the current UTC day"},
		[]string{"symbol"})
)

func init() {
	prometheus.MustRegister(
		metricTicks, metricDataErrors, metricEntries,
		metricFills, metricCloses, metricDailyPnL,
	)
}

// Status is a point-in-time snapshot of one trader for observers.
type Status struct {
	Symbol        string                   `json:"symbol"`
	State         string                   `json:"state"`
	Position      models.Position          `json:"position"`
	Fast          models.IndicatorSnapshot `json:"fast"`
	Slow          models.IndicatorSnapshot `json:"slow"`
	DailyPnL      float64                  `json:"dailyPnl"`
	DailyTrades   int                      `json:"dailyTrades"`
	TargetHit     bool                     `json:"targetHit"`
	LossLimitHit  bool                     `json:"lossLimitHit"`
	CooldownUntil time.Time                `json:"cooldownUntil,omitempty"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// Trader runs the decision/management loop for one instrument. All state
// reads and mutations happen behind one mutex, shared with the rollover
// timer.
type Trader struct {
	Symbol     string
	Config     *config.Config
	Data       interfaces.MarketDataProvider
	Manager    *position.Manager
	Risk       *risk.Engine
	Classifier *strategy.Classifier
	Ledger     *ledger.Ledger
	Notifier   interfaces.Notifier
	Journal    interfaces.TradeLog
	Clock      interfaces.Clock
	Logger     logging.LoggerInterface
	StatePath  string // ledger snapshot file, empty disables persistence

	mu            sync.Mutex
	cooldownUntil time.Time
	lastFast      models.IndicatorSnapshot
	lastSlow      models.IndicatorSnapshot
	lastTick      time.Time
}

// Run drives the decision loop on the configured interval and fires the day
// rollover once per UTC midnight, until the context is cancelled.
func (t *Trader) Run(ctx context.Context) {
	interval := time.Duration(t.Config.TickIntervalSec) * time.Second
	t.Logger.Info("Trader %s starting: tick every %s", t.Symbol, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rollover := time.NewTimer(time.Until(timeutil.NextDayOpen(t.Clock.Now())))
	defer rollover.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Logger.Info("Trader %s stopping", t.Symbol)
			return
		case <-rollover.C:
			t.mu.Lock()
			t.rolloverLocked(t.Clock.Now())
			t.mu.Unlock()
			rollover.Reset(time.Until(timeutil.NextDayOpen(t.Clock.Now())))
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick runs one decision pass: fetch candles, compute indicators, advance the
// position lifecycle, and evaluate a fresh entry when idle. Any collaborator
// failure degrades the tick to a no-op with state unchanged.
func (t *Trader) Tick() {
	now := t.Clock.Now()
	metricTicks.WithLabelValues(t.Symbol).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Catch boundaries the timer missed while the loop was delayed.
	t.rolloverLocked(now)

	fast, slow, daily, live, err := t.snapshots()
	if err != nil {
		metricDataErrors.WithLabelValues(t.Symbol).Inc()
		t.Logger.Warning("Tick skipped for %s: %v", t.Symbol, err)
		return
	}
	t.lastFast, t.lastSlow, t.lastTick = fast, slow, now

	switch t.Manager.State() {
	case models.Pending:
		opened, err := t.Manager.ConfirmPending(fast, slow, now)
		if err != nil {
			t.Logger.Warning("Pending handling for %s: %v", t.Symbol, err)
		}
		if opened {
			metricFills.WithLabelValues(t.Symbol).Inc()
			pos := t.Manager.Position()
			t.Notifier.Send(formatFill(t.Symbol, pos))
		}
		return

	case models.Open:
		t.Risk.UpdateTrailing(t.Manager.Ref(), live)
		reason, hit := t.Risk.CheckExit(t.Manager.Ref(), live)
		if !hit {
			return
		}
		res, err := t.Manager.RequestClose(reason, now)
		if err != nil {
			return // stays open, retried next tick
		}
		t.recordCloseLocked(res, now)
		return
	}

	// Idle: look for a fresh signal.
	gates := strategy.Gates{
		Now:           now,
		CooldownUntil: t.cooldownUntil,
		DailyLimitHit: t.Ledger.LimitReached(),
	}
	intent, ok := t.Classifier.Evaluate(fast, slow, daily, gates)
	if !ok {
		return
	}
	if err := t.Manager.RequestEntry(intent, live, live, now); err != nil {
		t.Logger.Warning("Entry request for %s refused: %v", t.Symbol, err)
		return
	}
	metricEntries.WithLabelValues(t.Symbol).Inc()
	pos := t.Manager.Position()
	t.Notifier.Send(formatPlacement(t.Symbol, intent, pos))
}

// Status snapshots the trader for the status server.
func (t *Trader) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Symbol:        t.Symbol,
		State:         t.Manager.State().String(),
		Position:      t.Manager.Position(),
		Fast:          t.lastFast,
		Slow:          t.lastSlow,
		DailyPnL:      t.Ledger.TotalPnL(),
		DailyTrades:   t.Ledger.TradeCount(),
		TargetHit:     t.Ledger.TargetHit(),
		LossLimitHit:  t.Ledger.LossLimitHit(),
		CooldownUntil: t.cooldownUntil,
		UpdatedAt:     t.lastTick,
	}
}

// Shutdown cancels any pending order and persists the ledger.
func (t *Trader) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Manager.CancelPending()
	t.persistLedgerLocked()
}

func (t *Trader) snapshots() (fast, slow models.IndicatorSnapshot, daily *models.IndicatorSnapshot, live float64, err error) {
	cfg := t.Config

	fastC, err := t.Data.GetCandles(t.Symbol, cfg.FastTimeframe, cfg.CandleCount)
	if err != nil {
		return fast, slow, nil, 0, err
	}
	slowC, err := t.Data.GetCandles(t.Symbol, cfg.SlowTimeframe, cfg.CandleCount)
	if err != nil {
		return fast, slow, nil, 0, err
	}

	fast, err = indicatorSnapshot(cfg.FastTimeframe, fastC, cfg)
	if err != nil {
		return fast, slow, nil, 0, err
	}
	slow, err = indicatorSnapshot(cfg.SlowTimeframe, slowC, cfg)
	if err != nil {
		return fast, slow, nil, 0, err
	}

	if cfg.UseDailyBias {
		dailyC, err := t.Data.GetCandles(t.Symbol, cfg.DailyTimeframe, cfg.CandleCount)
		if err != nil {
			return fast, slow, nil, 0, err
		}
		d, err := indicatorSnapshot(cfg.DailyTimeframe, dailyC, cfg)
		if err != nil {
			return fast, slow, nil, 0, err
		}
		daily = &d
	}

	// The forming fast candle close stands in for live price at this
	// polling cadence.
	live = fastC[len(fastC)-1].Close
	return fast, slow, daily, live, nil
}

func (t *Trader) recordCloseLocked(res models.TradeResult, now time.Time) {
	t.Ledger.RecordClose(res)
	metricCloses.WithLabelValues(t.Symbol, string(res.Reason)).Inc()
	metricDailyPnL.WithLabelValues(t.Symbol).Set(t.Ledger.TotalPnL())

	if res.Reason == models.ReasonTakeProfit && t.Config.CooldownSec > 0 {
		t.cooldownUntil = now.Add(time.Duration(t.Config.CooldownSec) * time.Second)
	}

	if err := t.Journal.Append(res); err != nil {
		t.Logger.Warning("Trade journal append failed: %v", err)
	}
	t.persistLedgerLocked()
	t.Notifier.Send(formatClose(res))

	if t.Ledger.LimitReached() {
		t.Logger.Info("Daily gate latched for %s: target=%t loss=%t",
			t.Symbol, t.Ledger.TargetHit(), t.Ledger.LossLimitHit())
	}
}

func (t *Trader) rolloverLocked(now time.Time) {
	summary, rolled := t.Ledger.RolloverIfNeeded(now)
	if !rolled {
		return
	}
	t.Logger.Info("Day rollover for %s: %d trades, pnl %.2f", t.Symbol, summary.Trades, summary.TotalPnL)
	metricDailyPnL.WithLabelValues(t.Symbol).Set(0)
	t.persistLedgerLocked()
	t.Notifier.Send(ledger.FormatSummary(t.Symbol, summary))
}

func (t *Trader) persistLedgerLocked() {
	if t.StatePath == "" {
		return
	}
	if err := ledger.Save(t.StatePath, t.Ledger); err != nil {
		t.Logger.Warning("Ledger snapshot save failed: %v", err)
	}
}
