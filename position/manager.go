package position

import (
	"errors"
	"time"

	"bandpilot/config"
	"bandpilot/interfaces"
	"bandpilot/logging"
	"bandpilot/models"
	"bandpilot/risk"
)

// Manager owns the single position slot for one instrument and drives its
// lifecycle: Idle -> Pending -> Open -> Closed -> Idle, with no skipped
// states and no way back from Open to Pending. It is not internally locked;
// the owning trader serializes all calls behind one mutex.
type Manager struct {
	Symbol  string
	Gateway interfaces.OrderGateway
	Config  *config.Config
	Risk    *risk.Engine
	Logger  logging.LoggerInterface

	pos models.Position
}

// NewManager creates a manager with an Idle slot.
func NewManager(symbol string, gw interfaces.OrderGateway, cfg *config.Config, riskEng *risk.Engine, logger logging.LoggerInterface) *Manager {
	return &Manager{
		Symbol:  symbol,
		Gateway: gw,
		Config:  cfg,
		Risk:    riskEng,
		Logger:  logger,
		pos:     models.Position{State: models.Idle},
	}
}

// Position returns a copy of the slot for observers.
func (m *Manager) Position() models.Position { return m.pos }

// State returns the current lifecycle state.
func (m *Manager) State() models.PositionState { return m.pos.State }

// Ref exposes the slot to the risk engine. Callers hold the trader mutex.
func (m *Manager) Ref() *models.Position { return &m.pos }

// RequestEntry places a stop-entry order for the intent, offset from the
// current best bid/ask by the configured buffer in the trade direction.
// A pending order for the opposite direction is cancelled and replaced; a
// same-direction duplicate is ignored.
func (m *Manager) RequestEntry(intent models.TradeIntent, bid, ask float64, now time.Time) error {
	switch m.pos.State {
	case models.Open:
		return nil
	case models.Closed:
		return &models.InvariantError{From: models.Closed, To: models.Pending}
	case models.Pending:
		if m.pos.Direction == intent.Direction {
			m.Logger.Debug("Pending %s order already placed, ignoring duplicate intent", intent.Direction)
			return nil
		}
		m.Logger.Info("Replacing pending %s order with %s intent", m.pos.Direction, intent.Direction)
		if err := m.Gateway.CancelOrder(m.Symbol, m.pos.PendingOrderID); err != nil {
			m.Logger.Error("Cancel of opposite pending order failed: %v", err)
			return err
		}
		m.reset()
	}

	var trigger float64
	if intent.Direction == models.Long {
		trigger = ask * (1 + m.Config.EntryBufferPerc)
	} else {
		trigger = bid * (1 - m.Config.EntryBufferPerc)
	}
	if trigger <= 0 {
		return models.ErrDataUnavailable
	}

	orderID, err := m.Gateway.PlaceStopEntry(m.Symbol, intent.Direction, trigger, m.Config.OrderQty)
	if err != nil {
		m.Logger.Error("Stop-entry placement refused: %v", err)
		if errors.Is(err, models.ErrOrderRejected) {
			return err
		}
		return models.ErrOrderRejected
	}

	m.pos = models.Position{
		State:          models.Pending,
		Direction:      intent.Direction,
		Style:          intent.Style,
		Qty:            m.Config.OrderQty,
		PendingOrderID: orderID,
		PendingSince:   now,
	}
	m.Logger.Info("Stop-entry placed: %s %s qty=%.4f trigger=%.4f id=%s",
		intent.Style, intent.Direction, m.Config.OrderQty, trigger, orderID)
	return nil
}

// ConfirmPending polls the gateway for the pending order. A fill moves the
// slot to Open and fixes SL/TP from the entry-time snapshots; a stale status
// query leaves the order Pending until the auto-cancel timeout elapses.
// Returns true when the position just opened.
func (m *Manager) ConfirmPending(fast, slow models.IndicatorSnapshot, now time.Time) (bool, error) {
	if m.pos.State != models.Pending {
		return false, nil
	}

	status, err := m.Gateway.GetOrderStatus(m.Symbol, m.pos.PendingOrderID)
	if err != nil {
		m.Logger.Warning("Order status query failed, treating as still pending: %v", err)
		return false, m.cancelIfExpired(now)
	}

	switch status.State {
	case models.OrderFilled:
		m.pos.State = models.Open
		m.pos.EntryPrice = status.FillPrice
		m.pos.OpenedAt = now
		m.pos.PendingOrderID = ""
		m.Risk.AttachLevels(&m.pos, fast, slow)
		m.Logger.Info("Order filled: %s entry=%.4f sl=%.4f tp=%.4f",
			m.pos.Direction, m.pos.EntryPrice, m.pos.StopLoss, m.pos.TakeProfit)
		return true, nil
	case models.OrderCancelled:
		m.Logger.Info("Pending order cancelled by gateway, returning to idle")
		m.reset()
		return false, nil
	default:
		return false, m.cancelIfExpired(now)
	}
}

// cancelIfExpired auto-cancels an unconfirmed stop-entry after the timeout.
func (m *Manager) cancelIfExpired(now time.Time) error {
	timeout := time.Duration(m.Config.PendingTimeoutSec) * time.Second
	if now.Sub(m.pos.PendingSince) < timeout {
		return nil
	}
	m.Logger.Info("Pending order %s unfilled after %s, auto-cancelling", m.pos.PendingOrderID, timeout)
	if err := m.Gateway.CancelOrder(m.Symbol, m.pos.PendingOrderID); err != nil {
		m.Logger.Error("Auto-cancel failed: %v", err)
		return err
	}
	m.reset()
	return nil
}

// RequestClose market-closes the open position and computes realized PnL,
// signed by direction. The transient Closed state folds to Idle immediately;
// a gateway failure leaves the slot Open and untouched.
func (m *Manager) RequestClose(reason models.CloseReason, now time.Time) (models.TradeResult, error) {
	if m.pos.State != models.Open {
		return models.TradeResult{}, &models.InvariantError{From: m.pos.State, To: models.Closed}
	}

	exit, err := m.Gateway.ClosePosition(m.Symbol, m.pos.Direction, m.pos.Qty)
	if err != nil {
		m.Logger.Error("Close request failed, position stays open: %v", err)
		return models.TradeResult{}, err
	}

	pnl := (exit - m.pos.EntryPrice) * m.pos.Qty
	if m.pos.Direction == models.Short {
		pnl = -pnl
	}

	result := models.TradeResult{
		Symbol:    m.Symbol,
		Direction: m.pos.Direction,
		Style:     m.pos.Style,
		Qty:       m.pos.Qty,
		Entry:     m.pos.EntryPrice,
		Exit:      exit,
		PnL:       pnl,
		Reason:    reason,
		ClosedAt:  now,
	}
	m.pos.State = models.Closed
	m.Logger.Info("Position closed (%s): %s entry=%.4f exit=%.4f pnl=%.2f",
		reason, result.Direction, result.Entry, result.Exit, result.PnL)
	m.reset()
	return result, nil
}

// CancelPending cancels any pending order, used during shutdown.
func (m *Manager) CancelPending() {
	if m.pos.State != models.Pending {
		return
	}
	if err := m.Gateway.CancelOrder(m.Symbol, m.pos.PendingOrderID); err != nil {
		m.Logger.Error("Shutdown cancel failed: %v", err)
		return
	}
	m.reset()
}

func (m *Manager) reset() {
	m.pos = models.Position{State: models.Idle}
}
