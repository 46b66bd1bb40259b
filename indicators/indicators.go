package indicators

import (
	"math"

	"bandpilot/models"
)

// SMA calculates Simple Moving Average
func SMA(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev calculates standard deviation
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := SMA(data)
	var sum float64
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// RSI calculates Relative Strength Index over the source series using Wilder
// smoothing. The returned slice is aligned with src; entries before index
// `length` are zero.
func RSI(src []float64, length int) []float64 {
	if len(src) < length+1 {
		return nil
	}
	out := make([]float64, len(src))
	var gain, loss float64
	for i := 1; i <= length; i++ {
		delta := src[i] - src[i-1]
		if delta >= 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(length)
	avgLoss := loss / float64(length)
	if avgLoss == 0 {
		out[length] = 100
	} else {
		rs := avgGain / avgLoss
		out[length] = 100 - 100/(1+rs)
	}
	for i := length + 1; i < len(src); i++ {
		delta := src[i] - src[i-1]
		if delta >= 0 {
			avgGain = (avgGain*(float64(length-1)) + delta) / float64(length)
			avgLoss = (avgLoss * (float64(length - 1))) / float64(length)
		} else {
			avgGain = (avgGain * (float64(length - 1))) / float64(length)
			avgLoss = (avgLoss*(float64(length-1)) - delta) / float64(length)
		}
		if avgLoss == 0 {
			out[i] = 100
		} else {
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// CalculateBollingerBands calculates upper and lower bands
func CalculateBollingerBands(closes []float64, windowSize int, bbMult float64) (upper, middle, lower float64) {
	if len(closes) < windowSize {
		return 0, 0, 0
	}

	recent := closes[len(closes)-windowSize:]
	middle = SMA(recent)
	stdDev := StdDev(recent)

	upper = middle + bbMult*stdDev
	lower = middle - bbMult*stdDev

	return upper, middle, lower
}

// MinCandles returns the shortest candle series that Snapshot accepts for the
// given windows (lookback plus a small settling margin).
func MinCandles(rsiLen, bbWindow int) int {
	need := bbWindow + 3
	if rsiLen+2 > need {
		need = rsiLen + 2
	}
	return need
}

// Snapshot derives an IndicatorSnapshot for the latest candle of the series.
// Candles must be ordered oldest first; the last candle may still be forming.
// Pure function of its input.
func Snapshot(timeframe string, candles []models.Candle, rsiLen, bbWindow int, bbMult float64) (models.IndicatorSnapshot, error) {
	if len(candles) < MinCandles(rsiLen, bbWindow) {
		return models.IndicatorSnapshot{}, models.ErrDataUnavailable
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	rsi := RSI(closes, rsiLen)
	if rsi == nil {
		return models.IndicatorSnapshot{}, models.ErrDataUnavailable
	}
	upper, middle, lower := CalculateBollingerBands(closes, bbWindow, bbMult)

	last := candles[len(candles)-1]
	return models.IndicatorSnapshot{
		Timeframe: timeframe,
		Time:      last.OpenTime,
		Open:      last.Open,
		Close:     last.Close,
		RSI:       rsi[len(rsi)-1],
		BBMid:     middle,
		BBHigh:    upper,
		BBLow:     lower,
	}, nil
}
