package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"bandpilot/config"
	"bandpilot/interfaces"
	"bandpilot/logging"
	"bandpilot/models"
)

// QuoteClient fetches candle series from the quote provider's time-series
// endpoint. Multiple API keys are tried in rotation so a throttled key does
// not stall the decision loop.
type QuoteClient struct {
	Config *config.Config
	Logger logging.LoggerInterface

	httpClient *http.Client
}

var _ interfaces.MarketDataProvider = (*QuoteClient)(nil)

// NewQuoteClient creates a quote provider client
func NewQuoteClient(cfg *config.Config, logger logging.LoggerInterface) *QuoteClient {
	return &QuoteClient{
		Config:     cfg,
		Logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type timeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
}

type timeSeriesResp struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Values  []timeSeriesValue `json:"values"`
}

// GetCandles returns candles ordered oldest first. The newest candle is
// marked unconfirmed since the provider reports the forming interval too.
func (c *QuoteClient) GetCandles(symbol, timeframe string, count int) ([]models.Candle, error) {
	keys := c.Config.QuoteAPIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}

	var lastErr error
	for _, key := range keys {
		candles, err := c.fetch(symbol, timeframe, count, key)
		if err != nil {
			c.Logger.Debug("Candle fetch with key rotation: %v", err)
			lastErr = err
			continue
		}
		return candles, nil
	}
	return nil, fmt.Errorf("%w: %v", models.ErrDataUnavailable, lastErr)
}

func (c *QuoteClient) fetch(symbol, timeframe string, count int, apiKey string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", timeframe)
	q.Set("outputsize", strconv.Itoa(count))
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}

	resp, err := c.httpClient.Get(c.Config.QuoteRESTHost + "/time_series?" + q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r timeSeriesResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	if len(r.Values) == 0 {
		return nil, fmt.Errorf("time series empty: %s %s", r.Status, r.Message)
	}

	candles := make([]models.Candle, 0, len(r.Values))
	for _, v := range r.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			continue
		}
		candles = append(candles, models.Candle{
			OpenTime:  ts,
			Open:      parseFloat(v.Open),
			High:      parseFloat(v.High),
			Low:       parseFloat(v.Low),
			Close:     parseFloat(v.Close),
			Confirmed: true,
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no parsable candles for %s %s", symbol, timeframe)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	candles[len(candles)-1].Confirmed = false
	return candles, nil
}

func parseDatetime(s string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
