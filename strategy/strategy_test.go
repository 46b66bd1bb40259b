package strategy

import (
	"testing"
	"time"

	"bandpilot/config"
	"bandpilot/logging"
	"bandpilot/models"
)

func testConfig() *config.Config {
	return &config.Config{
		RSINeutralHalfWidth: 5.0,
		HourCutoffMin:       10,
	}
}

func testClassifier() *Classifier {
	return NewClassifier(testConfig(), logging.Nop{})
}

// midHour is safely outside the closing-minutes window of the hourly candle.
var midHour = time.Date(2026, 2, 3, 12, 30, 0, 0, time.UTC)

// snapshotsFor builds a fast/slow pair that passes every gate; tests then
// bend individual fields.
func snapshotsFor() (fast, slow models.IndicatorSnapshot) {
	fast = models.IndicatorSnapshot{
		Timeframe: "5min",
		Open:      100, Close: 105,
		RSI:   65,
		BBMid: 102, BBHigh: 110, BBLow: 94,
	}
	slow = models.IndicatorSnapshot{
		Timeframe: "1h",
		Open:      50000, Close: 50500,
		RSI:   60,
		BBMid: 50200, BBHigh: 51500, BBLow: 48900,
	}
	return fast, slow
}

func TestTrendBuy(t *testing.T) {
	fast, slow := snapshotsFor()

	intent, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour})
	if !ok {
		t.Fatal("Expected a signal")
	}
	if intent.Direction != models.Long || intent.Style != models.Trend {
		t.Errorf("Expected trend LONG, got %s %s", intent.Style, intent.Direction)
	}
	if intent.ReferencePrice != 105 {
		t.Errorf("Expected reference 105, got %.2f", intent.ReferencePrice)
	}
}

func TestTrendSell(t *testing.T) {
	fast, slow := snapshotsFor()
	fast.Open, fast.Close = 105, 100 // closed down, under the middle band
	slow.Open, slow.Close = 50500, 50000

	intent, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour})
	if !ok {
		t.Fatal("Expected a signal")
	}
	if intent.Direction != models.Short || intent.Style != models.Trend {
		t.Errorf("Expected trend SHORT, got %s %s", intent.Style, intent.Direction)
	}
}

func TestReversalBuy(t *testing.T) {
	fast, slow := snapshotsFor()
	fast.Open, fast.Close = 100, 101 // closed up but still under the middle band

	intent, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour})
	if !ok {
		t.Fatal("Expected a signal")
	}
	if intent.Direction != models.Long || intent.Style != models.Reversal {
		t.Errorf("Expected reversal LONG, got %s %s", intent.Style, intent.Direction)
	}
}

func TestReversalSell(t *testing.T) {
	fast, slow := snapshotsFor()
	fast.Open, fast.Close = 106, 105 // closed down above the middle band
	slow.Open, slow.Close = 50500, 50000

	intent, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour})
	if !ok {
		t.Fatal("Expected a signal")
	}
	if intent.Direction != models.Short || intent.Style != models.Reversal {
		t.Errorf("Expected reversal SHORT, got %s %s", intent.Style, intent.Direction)
	}
}

func TestNoSignalOnMixedMomentum(t *testing.T) {
	fast, slow := snapshotsFor()
	fast.Open, fast.Close = 106, 105 // fast closed down while slow closed up

	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected no signal when fast and slow momentum disagree")
	}
}

func TestNeutralRSIBandGates(t *testing.T) {
	fast, slow := snapshotsFor()
	fast.RSI = 50
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected fast RSI 50 to be gated")
	}

	fast, slow = snapshotsFor()
	fast.RSI = 54.9 // inside half-width 5
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected fast RSI just inside the band to be gated")
	}

	fast, slow = snapshotsFor()
	slow.RSI = 46
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected slow RSI inside the band to be gated")
	}
}

func TestSlowExhaustionGates(t *testing.T) {
	fast, slow := snapshotsFor()
	slow.Close = slow.BBHigh
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected slow close at the upper band to be gated")
	}

	fast, slow = snapshotsFor()
	slow.Close = slow.BBLow - 10
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: midHour}); ok {
		t.Error("Expected slow close under the lower band to be gated")
	}
}

func TestCooldownGates(t *testing.T) {
	fast, slow := snapshotsFor()
	g := Gates{Now: midHour, CooldownUntil: midHour.Add(10 * time.Minute)}
	if _, ok := testClassifier().Evaluate(fast, slow, nil, g); ok {
		t.Error("Expected active cooldown to be gated")
	}

	g.CooldownUntil = midHour.Add(-time.Second)
	if _, ok := testClassifier().Evaluate(fast, slow, nil, g); !ok {
		t.Error("Expected expired cooldown to pass")
	}
}

func TestDailyLimitGates(t *testing.T) {
	fast, slow := snapshotsFor()
	g := Gates{Now: midHour, DailyLimitHit: true}
	if _, ok := testClassifier().Evaluate(fast, slow, nil, g); ok {
		t.Error("Expected latched daily limit to be gated")
	}
}

func TestHourCutoffGates(t *testing.T) {
	fast, slow := snapshotsFor()

	late := time.Date(2026, 2, 3, 12, 55, 0, 0, time.UTC)
	if _, ok := testClassifier().Evaluate(fast, slow, nil, Gates{Now: late}); ok {
		t.Error("Expected the closing minutes of the hour to be gated")
	}

	// Cutoff disabled
	c := testClassifier()
	c.Config.HourCutoffMin = 0
	if _, ok := c.Evaluate(fast, slow, nil, Gates{Now: late}); !ok {
		t.Error("Expected signal with the hour cutoff disabled")
	}
}

func TestDailyBiasFilter(t *testing.T) {
	cfg := testConfig()
	cfg.UseDailyBias = true
	c := NewClassifier(cfg, logging.Nop{})

	fast, slow := snapshotsFor()
	dailyDown := &models.IndicatorSnapshot{Timeframe: "1day", Open: 51000, Close: 50000}

	// Trend entries need daily agreement; this setup matches no reversal rule
	// either, so the tick yields nothing.
	if _, ok := c.Evaluate(fast, slow, dailyDown, Gates{Now: midHour}); ok {
		t.Error("Expected daily bias to block the trend entry")
	}

	dailyUp := &models.IndicatorSnapshot{Timeframe: "1day", Open: 50000, Close: 51000}
	intent, ok := c.Evaluate(fast, slow, dailyUp, Gates{Now: midHour})
	if !ok || intent.Style != models.Trend || intent.Direction != models.Long {
		t.Errorf("Expected trend LONG with daily agreement, got ok=%t %+v", ok, intent)
	}

	// Reversal entries ignore the daily candle entirely.
	fast.Open, fast.Close = 100, 101
	intent, ok = c.Evaluate(fast, slow, dailyDown, Gates{Now: midHour})
	if !ok || intent.Style != models.Reversal {
		t.Errorf("Expected reversal LONG regardless of daily bias, got ok=%t %+v", ok, intent)
	}
}
