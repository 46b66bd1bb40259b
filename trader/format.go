package trader

import (
	"fmt"

	"bandpilot/config"
	"bandpilot/indicators"
	"bandpilot/models"
)

func indicatorSnapshot(timeframe string, candles []models.Candle, cfg *config.Config) (models.IndicatorSnapshot, error) {
	return indicators.Snapshot(timeframe, candles, cfg.RSIPeriod, cfg.BBWindow, cfg.BBMult)
}

// Status lines pushed through the notifier. Wording is presentational only.

func formatPlacement(symbol string, intent models.TradeIntent, pos models.Position) string {
	return fmt.Sprintf("%s: %s %s stop-entry placed, qty %.4f (ref %.4f)",
		symbol, intent.Style, intent.Direction, pos.Qty, intent.ReferencePrice)
}

func formatFill(symbol string, pos models.Position) string {
	return fmt.Sprintf("%s: %s filled at %.4f, SL %.4f TP %.4f",
		symbol, pos.Direction, pos.EntryPrice, pos.StopLoss, pos.TakeProfit)
}

func formatClose(res models.TradeResult) string {
	return fmt.Sprintf("%s: %s closed (%s) entry %.4f exit %.4f pnl %.2f",
		res.Symbol, res.Direction, res.Reason, res.Entry, res.Exit, res.PnL)
}
