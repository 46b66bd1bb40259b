package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"bandpilot/config"
	"bandpilot/interfaces"
	"bandpilot/logging"
	"bandpilot/models"
)

// Exchange retCodes that mean a cancel raced a fill or an earlier cancel;
// CancelOrder treats these as success to stay idempotent.
var cancelNoopCodes = map[int]bool{
	110001: true, // order does not exist
	110004: true, // order already filled
	110008: true, // order already cancelled
}

// Gateway is the REST order-execution shim. All decision logic stays in the
// core; this only signs and ships requests.
type Gateway struct {
	Config *config.Config
	Logger logging.LoggerInterface

	httpClient *http.Client
}

// An IOC market close executes on the exchange before the realtime endpoint
// reports the fill, so ClosePosition polls the status a few times before
// giving up.
const (
	closeFillPolls   = 5
	closeFillPollGap = 200 * time.Millisecond
)

var _ interfaces.OrderGateway = (*Gateway)(nil)

// NewGateway creates an exchange gateway client
func NewGateway(cfg *config.Config, logger logging.LoggerInterface) *Gateway {
	return &Gateway{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SignREST signs a REST request
func (g *Gateway) SignREST(secret, timestamp, apiKey, recvWindow, payload string) string {
	base := timestamp + apiKey + recvWindow + payload
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

// PlaceStopEntry places a conditional market order that activates once price
// crosses triggerPrice.
func (g *Gateway) PlaceStopEntry(symbol string, direction models.Direction, triggerPrice, qty float64) (string, error) {
	side := "Buy"
	triggerDirection := 1 // triggered when price rises to trigger
	if direction == models.Short {
		side = "Sell"
		triggerDirection = 2
	}

	body := map[string]interface{}{
		"category":         "linear",
		"symbol":           symbol,
		"side":             side,
		"orderType":        "Market",
		"qty":              fmt.Sprintf("%.4f", qty),
		"triggerPrice":     fmt.Sprintf("%.4f", triggerPrice),
		"triggerDirection": triggerDirection,
		"timeInForce":      "GTC",
		"orderLinkId":      uuid.NewString(),
		"positionIdx":      0,
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := g.post("/v5/order/create", body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrOrderRejected, err)
	}
	if r.RetCode != 0 || r.Result.OrderID == "" {
		return "", fmt.Errorf("%w: %d: %s", models.ErrOrderRejected, r.RetCode, r.RetMsg)
	}
	return r.Result.OrderID, nil
}

// CancelOrder cancels a pending order. Already-filled or already-cancelled
// orders are a no-op.
func (g *Gateway) CancelOrder(symbol, orderID string) error {
	body := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := g.post("/v5/order/cancel", body, &r); err != nil {
		return err
	}
	if r.RetCode != 0 && !cancelNoopCodes[r.RetCode] {
		return fmt.Errorf("cancel order %s: %d: %s", orderID, r.RetCode, r.RetMsg)
	}
	return nil
}

// GetOrderStatus queries the realtime state of one order.
func (g *Gateway) GetOrderStatus(symbol, orderID string) (models.OrderStatus, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				OrderStatus string `json:"orderStatus"`
				AvgPrice    string `json:"avgPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := g.get("/v5/order/realtime", q, &r); err != nil {
		return models.OrderStatus{}, fmt.Errorf("%w: %v", models.ErrStaleFill, err)
	}
	if r.RetCode != 0 || len(r.Result.List) == 0 {
		return models.OrderStatus{}, fmt.Errorf("%w: %d: %s", models.ErrStaleFill, r.RetCode, r.RetMsg)
	}

	it := r.Result.List[0]
	switch it.OrderStatus {
	case "Filled":
		return models.OrderStatus{State: models.OrderFilled, FillPrice: parseFloat(it.AvgPrice)}, nil
	case "Cancelled", "Rejected", "Deactivated":
		return models.OrderStatus{State: models.OrderCancelled}, nil
	default:
		return models.OrderStatus{State: models.OrderPending}, nil
	}
}

// ClosePosition market-closes the position with a reduce-only order and
// returns the average fill price.
func (g *Gateway) ClosePosition(symbol string, direction models.Direction, qty float64) (float64, error) {
	side := "Sell" // closing a long sells
	if direction == models.Short {
		side = "Buy"
	}

	body := map[string]interface{}{
		"category":    "linear",
		"symbol":      symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         fmt.Sprintf("%.4f", qty),
		"timeInForce": "IOC",
		"reduceOnly":  true,
		"positionIdx": 0,
	}

	var r struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := g.post("/v5/order/create", body, &r); err != nil {
		return 0, err
	}
	if r.RetCode != 0 {
		return 0, fmt.Errorf("close position: %d: %s", r.RetCode, r.RetMsg)
	}

	var lastErr error
	for attempt := 0; attempt < closeFillPolls; attempt++ {
		if attempt > 0 {
			time.Sleep(closeFillPollGap)
		}
		status, err := g.GetOrderStatus(symbol, r.Result.OrderID)
		if err != nil {
			lastErr = err
			continue
		}
		if status.State == models.OrderFilled && status.FillPrice > 0 {
			return status.FillPrice, nil
		}
		lastErr = fmt.Errorf("close order %s not filled", r.Result.OrderID)
	}
	return 0, lastErr
}

func (g *Gateway) post(path string, body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())

	g.Logger.Debug("Gateway POST %s: %s", path, raw)

	req, err := http.NewRequest("POST", g.Config.RESTHost+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	g.sign(req, ts, string(raw))

	return g.do(req, path, out)
}

func (g *Gateway) get(path string, q url.Values, out interface{}) error {
	ts := fmt.Sprintf("%d", time.Now().UnixMilli())

	req, err := http.NewRequest("GET", g.Config.RESTHost+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	g.sign(req, ts, q.Encode())

	return g.do(req, path, out)
}

func (g *Gateway) sign(req *http.Request, ts, payload string) {
	req.Header.Set("X-BAPI-API-KEY", g.Config.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", g.Config.RecvWindow)
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-SIGN", g.SignREST(g.Config.APISecret, ts, g.Config.APIKey, g.Config.RecvWindow, payload))
}

func (g *Gateway) do(req *http.Request, path string, out interface{}) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	g.Logger.Debug("Gateway response %s: status %d body %s", path, resp.StatusCode, reply)
	return json.Unmarshal(reply, out)
}
