package position

import (
	"errors"
	"math"
	"testing"
	"time"

	"bandpilot/config"
	"bandpilot/logging"
	"bandpilot/models"
	"bandpilot/risk"
)

// fakeGateway scripts gateway responses and records calls.
type fakeGateway struct {
	placeErr   error
	statusResp models.OrderStatus
	statusErr  error
	cancelErr  error
	closePrice float64
	closeErr   error

	placed    []float64 // trigger prices in call order
	placedDir []models.Direction
	cancelled []string
	closed    int
	nextID    int
}

func (g *fakeGateway) PlaceStopEntry(symbol string, dir models.Direction, trigger, qty float64) (string, error) {
	if g.placeErr != nil {
		return "", g.placeErr
	}
	g.nextID++
	g.placed = append(g.placed, trigger)
	g.placedDir = append(g.placedDir, dir)
	return "ord-" + string(rune('0'+g.nextID)), nil
}

func (g *fakeGateway) CancelOrder(symbol, orderID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) GetOrderStatus(symbol, orderID string) (models.OrderStatus, error) {
	return g.statusResp, g.statusErr
}

func (g *fakeGateway) ClosePosition(symbol string, dir models.Direction, qty float64) (float64, error) {
	if g.closeErr != nil {
		return 0, g.closeErr
	}
	g.closed++
	return g.closePrice, nil
}

var t0 = time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)

func newTestManager(gw *fakeGateway) *Manager {
	cfg := &config.Config{
		OrderQty:          2,
		EntryBufferPerc:   0.001,
		PendingTimeoutSec: 600,
		SlFallbackPerc:    0.01,
	}
	return NewManager("BTC/USD", gw, cfg, risk.NewEngine(risk.DefaultTiers(), 0.01), logging.Nop{})
}

func longIntent() models.TradeIntent {
	return models.TradeIntent{Direction: models.Long, Style: models.Trend, ReferencePrice: 100}
}

func shortIntent() models.TradeIntent {
	return models.TradeIntent{Direction: models.Short, Style: models.Reversal, ReferencePrice: 100}
}

func TestRequestEntryPlacesStopOrder(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestManager(gw)

	if err := m.RequestEntry(longIntent(), 99.9, 100, t0); err != nil {
		t.Fatalf("RequestEntry: %v", err)
	}
	if m.State() != models.Pending {
		t.Fatalf("Expected Pending, got %s", m.State())
	}
	if len(gw.placed) != 1 {
		t.Fatalf("Expected 1 placement, got %d", len(gw.placed))
	}
	// Long triggers above the ask by the buffer.
	want := 100 * 1.001
	if math.Abs(gw.placed[0]-want) > 1e-9 {
		t.Errorf("Expected trigger %.4f, got %.4f", want, gw.placed[0])
	}

	pos := m.Position()
	if pos.Qty != 2 || pos.Direction != models.Long || pos.PendingOrderID == "" {
		t.Errorf("Unexpected pending slot: %+v", pos)
	}
	if !pos.PendingSince.Equal(t0) {
		t.Errorf("Expected PendingSince %v, got %v", t0, pos.PendingSince)
	}
}

func TestRequestEntryShortTrigger(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestManager(gw)

	if err := m.RequestEntry(shortIntent(), 99.9, 100, t0); err != nil {
		t.Fatalf("RequestEntry: %v", err)
	}
	// Short triggers below the bid by the buffer.
	want := 99.9 * 0.999
	if math.Abs(gw.placed[0]-want) > 1e-9 {
		t.Errorf("Expected trigger %.4f, got %.4f", want, gw.placed[0])
	}
}

func TestRequestEntryDuplicateIgnored(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)
	if err := m.RequestEntry(longIntent(), 99.9, 100, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Duplicate intent: %v", err)
	}
	if len(gw.placed) != 1 {
		t.Errorf("Expected duplicate intent to be ignored, got %d placements", len(gw.placed))
	}
	if len(gw.cancelled) != 0 {
		t.Errorf("Expected no cancels, got %d", len(gw.cancelled))
	}
}

func TestRequestEntryOppositeReplaces(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)
	firstID := m.Position().PendingOrderID

	if err := m.RequestEntry(shortIntent(), 99.9, 100, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Opposite intent: %v", err)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != firstID {
		t.Errorf("Expected cancel of %s, got %v", firstID, gw.cancelled)
	}
	if len(gw.placed) != 2 {
		t.Fatalf("Expected replacement placement, got %d", len(gw.placed))
	}
	if m.Position().Direction != models.Short {
		t.Errorf("Expected SHORT after replacement, got %s", m.Position().Direction)
	}
}

func TestRequestEntryWhileOpenIsNoop(t *testing.T) {
	gw := &fakeGateway{statusResp: models.OrderStatus{State: models.OrderFilled, FillPrice: 100}}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)
	if _, err := m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0); err != nil {
		t.Fatalf("ConfirmPending: %v", err)
	}

	if err := m.RequestEntry(shortIntent(), 99.9, 100, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Entry while open: %v", err)
	}
	if len(gw.placed) != 1 {
		t.Errorf("Expected no new placement while open, got %d", len(gw.placed))
	}
}

func TestRequestEntryRejectionKeepsIdle(t *testing.T) {
	gw := &fakeGateway{placeErr: models.ErrOrderRejected}
	m := newTestManager(gw)

	err := m.RequestEntry(longIntent(), 99.9, 100, t0)
	if !errors.Is(err, models.ErrOrderRejected) {
		t.Fatalf("Expected ErrOrderRejected, got %v", err)
	}
	if m.State() != models.Idle {
		t.Errorf("Expected Idle after rejection, got %s", m.State())
	}
}

func TestConfirmPendingFillAttachesLevels(t *testing.T) {
	gw := &fakeGateway{statusResp: models.OrderStatus{State: models.OrderFilled, FillPrice: 100}}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)

	fast := models.IndicatorSnapshot{Open: 99, BBMid: 101, BBHigh: 106, BBLow: 95}
	slow := models.IndicatorSnapshot{Open: 98}
	opened, err := m.ConfirmPending(fast, slow, t0.Add(time.Minute))
	if err != nil || !opened {
		t.Fatalf("Expected fill, got opened=%t err=%v", opened, err)
	}

	pos := m.Position()
	if pos.State != models.Open || pos.EntryPrice != 100 {
		t.Fatalf("Unexpected slot after fill: %+v", pos)
	}
	if pos.StopLoss != 98 || pos.TakeProfit != 106 {
		t.Errorf("Expected sl=98 tp=106, got sl=%.2f tp=%.2f", pos.StopLoss, pos.TakeProfit)
	}
	if pos.TrailingPeak != 100 || pos.TrailingPercent != 0 {
		t.Errorf("Expected fresh trailing state, got %+v", pos)
	}
}

func TestConfirmPendingAutoCancelAfterTimeout(t *testing.T) {
	gw := &fakeGateway{statusResp: models.OrderStatus{State: models.OrderPending}}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)

	// Nine minutes in: still waiting.
	opened, err := m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0.Add(9*time.Minute))
	if err != nil || opened {
		t.Fatalf("Expected still pending, got opened=%t err=%v", opened, err)
	}
	if m.State() != models.Pending || len(gw.cancelled) != 0 {
		t.Fatal("Expected order untouched inside the timeout")
	}

	// Eleven minutes in: past the 600s timeout, auto-cancel.
	opened, err = m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0.Add(11*time.Minute))
	if err != nil || opened {
		t.Fatalf("Expected auto-cancel, got opened=%t err=%v", opened, err)
	}
	if m.State() != models.Idle {
		t.Errorf("Expected Idle after auto-cancel, got %s", m.State())
	}
	if len(gw.cancelled) != 1 {
		t.Errorf("Expected 1 cancel, got %d", len(gw.cancelled))
	}
}

func TestConfirmPendingStaleStatusKeepsPending(t *testing.T) {
	gw := &fakeGateway{statusErr: models.ErrStaleFill}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)

	opened, err := m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0.Add(time.Minute))
	if err != nil || opened {
		t.Fatalf("Expected quiet retry, got opened=%t err=%v", opened, err)
	}
	if m.State() != models.Pending {
		t.Errorf("Expected Pending while status is unavailable, got %s", m.State())
	}

	// The timeout still applies when the gateway keeps failing.
	_, err = m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0.Add(11*time.Minute))
	if err != nil {
		t.Fatalf("Expected auto-cancel despite stale status, got %v", err)
	}
	if m.State() != models.Idle {
		t.Errorf("Expected Idle, got %s", m.State())
	}
}

func TestConfirmPendingGatewayCancelled(t *testing.T) {
	gw := &fakeGateway{statusResp: models.OrderStatus{State: models.OrderCancelled}}
	m := newTestManager(gw)

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)
	opened, err := m.ConfirmPending(models.IndicatorSnapshot{}, models.IndicatorSnapshot{}, t0.Add(time.Minute))
	if err != nil || opened {
		t.Fatalf("Expected reset, got opened=%t err=%v", opened, err)
	}
	if m.State() != models.Idle {
		t.Errorf("Expected Idle after gateway cancel, got %s", m.State())
	}
}

func openPosition(t *testing.T, gw *fakeGateway, intent models.TradeIntent, fill float64) *Manager {
	t.Helper()
	gw.statusResp = models.OrderStatus{State: models.OrderFilled, FillPrice: fill}
	m := newTestManager(gw)
	if err := m.RequestEntry(intent, 99.9, 100, t0); err != nil {
		t.Fatalf("RequestEntry: %v", err)
	}
	fast := models.IndicatorSnapshot{Open: 99, BBMid: 101, BBHigh: 106, BBLow: 95}
	slow := models.IndicatorSnapshot{Open: 98}
	if _, err := m.ConfirmPending(fast, slow, t0); err != nil {
		t.Fatalf("ConfirmPending: %v", err)
	}
	return m
}

func TestRequestCloseLong(t *testing.T) {
	gw := &fakeGateway{closePrice: 104}
	m := openPosition(t, gw, longIntent(), 100)

	res, err := m.RequestClose(models.ReasonTakeProfit, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("RequestClose: %v", err)
	}
	if res.PnL != 8 { // (104-100) * qty 2
		t.Errorf("Expected pnl 8, got %.2f", res.PnL)
	}
	if res.Reason != models.ReasonTakeProfit || res.Exit != 104 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if m.State() != models.Idle {
		t.Errorf("Expected Idle after close, got %s", m.State())
	}
}

func TestRequestCloseShortPnLSign(t *testing.T) {
	gw := &fakeGateway{closePrice: 104}
	m := openPosition(t, gw, shortIntent(), 100)

	res, err := m.RequestClose(models.ReasonStopLoss, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("RequestClose: %v", err)
	}
	if res.PnL != -8 { // short loses when price rises
		t.Errorf("Expected pnl -8, got %.2f", res.PnL)
	}
}

func TestRequestCloseFailureKeepsOpen(t *testing.T) {
	gw := &fakeGateway{closeErr: errors.New("exchange down")}
	m := openPosition(t, gw, longIntent(), 100)
	before := m.Position()

	if _, err := m.RequestClose(models.ReasonStopLoss, t0.Add(time.Hour)); err == nil {
		t.Fatal("Expected close failure")
	}
	after := m.Position()
	if after.State != models.Open || after != before {
		t.Errorf("Expected slot untouched after failed close, got %+v", after)
	}
}

func TestRequestCloseWhileIdleIsInvariantError(t *testing.T) {
	m := newTestManager(&fakeGateway{})

	_, err := m.RequestClose(models.ReasonStopLoss, t0)
	var inv *models.InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("Expected InvariantError, got %v", err)
	}
	if inv.From != models.Idle || inv.To != models.Closed {
		t.Errorf("Unexpected transition in error: %v", inv)
	}
}

func TestCancelPending(t *testing.T) {
	gw := &fakeGateway{}
	m := newTestManager(gw)

	m.CancelPending() // idle: nothing to do
	if len(gw.cancelled) != 0 {
		t.Fatal("Expected no cancel while idle")
	}

	_ = m.RequestEntry(longIntent(), 99.9, 100, t0)
	m.CancelPending()
	if m.State() != models.Idle || len(gw.cancelled) != 1 {
		t.Errorf("Expected cancelled pending order, state=%s cancels=%d", m.State(), len(gw.cancelled))
	}
}
