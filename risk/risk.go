package risk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"bandpilot/models"
)

// Tier maps an unrealized profit threshold to a trailing-stop width. Wider
// profit means a tighter trail.
type Tier struct {
	ProfitPerc float64 `yaml:"profit_perc"`
	TrailPerc  float64 `yaml:"trail_perc"`
}

type tierFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// DefaultTiers returns the built-in ratchet table: profit >=3% trails 1.5%,
// >=2% trails 1.0%, >=1% trails 0.5%, below 1% trailing is inactive.
func DefaultTiers() []Tier {
	return []Tier{
		{ProfitPerc: 3.0, TrailPerc: 1.5},
		{ProfitPerc: 2.0, TrailPerc: 1.0},
		{ProfitPerc: 1.0, TrailPerc: 0.5},
	}
}

// LoadTiers reads a ratchet table from a YAML file.
func LoadTiers(path string) ([]Tier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ratchet file: %w", err)
	}
	var f tierFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse ratchet file: %w", err)
	}
	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("ratchet file %q has no tiers", path)
	}
	for _, t := range f.Tiers {
		if t.ProfitPerc <= 0 || t.TrailPerc <= 0 {
			return nil, fmt.Errorf("ratchet tier %+v has non-positive values", t)
		}
	}
	return f.Tiers, nil
}

// Engine computes stop-loss/take-profit levels at entry and ratchets the
// trailing stop as unrealized profit grows.
type Engine struct {
	tiers          []Tier
	slFallbackPerc float64
}

// NewEngine creates a risk engine. Tiers are sorted widest profit first so
// the first matching tier is the tightest applicable trail.
func NewEngine(tiers []Tier, slFallbackPerc float64) *Engine {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProfitPerc > sorted[j].ProfitPerc })
	if slFallbackPerc <= 0 {
		slFallbackPerc = 0.01
	}
	return &Engine{tiers: sorted, slFallbackPerc: slFallbackPerc}
}

// AttachLevels fixes stopLoss/takeProfit on a freshly filled position.
// Trend trades stop at the slow candle's open and target the fast outer
// Bollinger band; reversal trades use the fast candle's own open and middle
// band. A structural level on the wrong side of the entry falls back to a
// percent offset.
func (e *Engine) AttachLevels(pos *models.Position, fast, slow models.IndicatorSnapshot) {
	entry := pos.EntryPrice

	var sl, tp float64
	switch pos.Style {
	case models.Trend:
		sl = slow.Open
		if pos.Direction == models.Long {
			tp = fast.BBHigh
		} else {
			tp = fast.BBLow
		}
	default: // reversal
		sl = fast.Open
		tp = fast.BBMid
	}

	if pos.Direction == models.Long {
		if sl >= entry {
			sl = entry * (1 - e.slFallbackPerc)
		}
		if tp <= entry {
			tp = entry * (1 + 2*e.slFallbackPerc)
		}
	} else {
		if sl <= entry {
			sl = entry * (1 + e.slFallbackPerc)
		}
		if tp >= entry {
			tp = entry * (1 - 2*e.slFallbackPerc)
		}
	}

	pos.StopLoss = sl
	pos.TakeProfit = tp
	pos.TrailingPeak = entry
	pos.TrailingPercent = 0
}

// UpdateTrailing advances the trailing peak to the most favorable price seen
// and ratchets the trailing percent per the tier table. The percent only
// tightens for the lifetime of one open position.
func (e *Engine) UpdateTrailing(pos *models.Position, price float64) {
	if pos.State != models.Open || price <= 0 {
		return
	}

	if pos.Direction == models.Long {
		if price > pos.TrailingPeak {
			pos.TrailingPeak = price
		}
	} else {
		if pos.TrailingPeak == 0 || price < pos.TrailingPeak {
			pos.TrailingPeak = price
		}
	}

	profitPerc := e.unrealizedPerc(pos, pos.TrailingPeak)
	for _, tier := range e.tiers {
		if profitPerc >= tier.ProfitPerc {
			if tier.TrailPerc > pos.TrailingPercent {
				pos.TrailingPercent = tier.TrailPerc
			}
			break
		}
	}
}

// CheckExit evaluates exit thresholds for the current price. The trailing
// stop is evaluated first when active, then the static stop-loss and
// take-profit.
func (e *Engine) CheckExit(pos *models.Position, price float64) (models.CloseReason, bool) {
	if pos.State != models.Open || price <= 0 {
		return "", false
	}

	if pos.TrailingPercent > 0 {
		trail := pos.TrailingPercent / 100
		if pos.Direction == models.Long && price <= pos.TrailingPeak*(1-trail) {
			return models.ReasonTrailingStop, true
		}
		if pos.Direction == models.Short && price >= pos.TrailingPeak*(1+trail) {
			return models.ReasonTrailingStop, true
		}
	}

	if pos.Direction == models.Long {
		if price <= pos.StopLoss {
			return models.ReasonStopLoss, true
		}
		if price >= pos.TakeProfit {
			return models.ReasonTakeProfit, true
		}
	} else {
		if price >= pos.StopLoss {
			return models.ReasonStopLoss, true
		}
		if price <= pos.TakeProfit {
			return models.ReasonTakeProfit, true
		}
	}

	return "", false
}

func (e *Engine) unrealizedPerc(pos *models.Position, price float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	move := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Direction == models.Short {
		move = -move
	}
	return move
}
