package strategy

import (
	"math"
	"time"

	"bandpilot/config"
	"bandpilot/logging"
	"bandpilot/models"
)

// Gates carries the per-tick gating inputs the trader owns: the cool-down
// window after a take-profit close and the daily ledger latch.
type Gates struct {
	Now           time.Time
	CooldownUntil time.Time
	DailyLimitHit bool
}

// Classifier turns indicator snapshots for two or three timeframes into a
// trade intent. Rules are evaluated in precedence order; the first match
// wins and no match means no-signal.
type Classifier struct {
	Config *config.Config
	Logger logging.LoggerInterface
}

// NewClassifier creates a classifier instance
func NewClassifier(cfg *config.Config, logger logging.LoggerInterface) *Classifier {
	return &Classifier{Config: cfg, Logger: logger}
}

// Evaluate classifies the current moment. The daily snapshot is optional and
// only consulted for trend entries when the daily bias filter is enabled.
func (c *Classifier) Evaluate(fast, slow models.IndicatorSnapshot, daily *models.IndicatorSnapshot, g Gates) (models.TradeIntent, bool) {
	if reason, gated := c.gated(fast, slow, g); gated {
		c.Logger.Debug("Signal gated: %s", reason)
		return models.TradeIntent{}, false
	}

	closedUp := fast.Close > fast.Open
	closedDown := fast.Close < fast.Open
	slowUp := slow.Close > slow.Open
	slowDown := slow.Close < slow.Open

	dailyUp, dailyDown := true, true
	if c.Config.UseDailyBias && daily != nil {
		dailyUp = daily.Close > daily.Open
		dailyDown = daily.Close < daily.Open
	}

	switch {
	case fast.Close > fast.BBMid && closedUp && slowUp && dailyUp:
		return c.intent(models.Long, models.Trend, fast.Close), true
	case fast.Close < fast.BBMid && closedDown && slowDown && dailyDown:
		return c.intent(models.Short, models.Trend, fast.Close), true
	case fast.Close < fast.BBMid && closedUp && slowUp:
		return c.intent(models.Long, models.Reversal, fast.Close), true
	case fast.Close > fast.BBMid && closedDown && slowDown:
		return c.intent(models.Short, models.Reversal, fast.Close), true
	}

	return models.TradeIntent{}, false
}

func (c *Classifier) intent(dir models.Direction, style models.TradeStyle, ref float64) models.TradeIntent {
	c.Logger.Info("Signal: %s %s at %.4f", style, dir, ref)
	return models.TradeIntent{Direction: dir, Style: style, ReferencePrice: ref}
}

// gated applies the filters of rule 1; any hit suppresses entries this tick.
func (c *Classifier) gated(fast, slow models.IndicatorSnapshot, g Gates) (string, bool) {
	if !g.CooldownUntil.IsZero() && g.Now.Before(g.CooldownUntil) {
		return "cooldown active after take-profit close", true
	}
	if g.DailyLimitHit {
		return "daily target or loss limit reached", true
	}

	half := c.Config.RSINeutralHalfWidth
	if math.Abs(fast.RSI-50) <= half {
		return "fast RSI inside neutral band", true
	}
	if math.Abs(slow.RSI-50) <= half {
		return "slow RSI inside neutral band", true
	}

	if slow.Close >= slow.BBHigh || slow.Close <= slow.BBLow {
		return "slow close in Bollinger exhaustion zone", true
	}

	if cutoff := c.Config.HourCutoffMin; cutoff > 0 {
		if 60-g.Now.UTC().Minute() <= cutoff {
			return "inside closing minutes of the hourly candle", true
		}
	}

	return "", false
}
