package guards

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bandpilot/interfaces"
	"bandpilot/models"
)

var (
	metricOrdersAttempted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_orders_attempted_total", Help: "Orders the bot tried to place"})
	metricOrdersPlaced     = prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_orders_placed_total", Help: "Orders successfully handed to the exchange"})
	metricOrdersFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_orders_failed_total", Help: "Orders that failed after retries"})
	metricOrdersSuppressed = prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_orders_suppressed_total", Help: "Orders blocked by the safety layer (rate/idempotency)"})
)

func init() {
	prometheus.MustRegister(
		metricOrdersAttempted, metricOrdersPlaced,
		metricOrdersFailed, metricOrdersSuppressed,
	)
}

// SafeGateway wraps an OrderGateway with a per-minute rate limit, bounded
// retries with backoff, and duplicate suppression on entry placement. Status
// queries and cancels pass through untouched: they are idempotent already.
// Safe for use from several trader goroutines: mu guards the rate window and
// the duplicate-suppression key.
type SafeGateway struct {
	inner interfaces.OrderGateway

	mu           sync.Mutex
	orderTimes   []time.Time
	perMinuteCap int

	maxRetries int
	backoff    time.Duration

	dupWindow    time.Duration
	lastOrderKey string
	lastOrderAt  time.Time
}

var _ interfaces.OrderGateway = (*SafeGateway)(nil)

// NewSafeGateway wraps inner with the safety layer.
func NewSafeGateway(inner interfaces.OrderGateway, perMinuteCap, maxRetries int, backoff, dupWindow time.Duration) *SafeGateway {
	return &SafeGateway{
		inner:        inner,
		perMinuteCap: perMinuteCap,
		maxRetries:   maxRetries,
		backoff:      backoff,
		dupWindow:    dupWindow,
	}
}

func (s *SafeGateway) PlaceStopEntry(symbol string, direction models.Direction, triggerPrice, qty float64) (string, error) {
	now := time.Now()
	metricOrdersAttempted.Inc()

	okey := s.ordKey(symbol, direction, qty)
	if err := s.admit(now, okey); err != nil {
		metricOrdersSuppressed.Inc()
		return "", err
	}

	var id string
	var err error
	for i := 0; i <= s.maxRetries; i++ {
		id, err = s.inner.PlaceStopEntry(symbol, direction, triggerPrice, qty)
		if err == nil {
			s.noteOrder(now, okey)
			metricOrdersPlaced.Inc()
			return id, nil
		}
		// A rejection is a decision, not an outage; do not hammer the API.
		if errors.Is(err, models.ErrOrderRejected) {
			break
		}
		time.Sleep(time.Duration(i+1) * s.backoff)
	}
	metricOrdersFailed.Inc()
	return "", err
}

func (s *SafeGateway) CancelOrder(symbol, orderID string) error {
	return s.inner.CancelOrder(symbol, orderID)
}

func (s *SafeGateway) GetOrderStatus(symbol, orderID string) (models.OrderStatus, error) {
	return s.inner.GetOrderStatus(symbol, orderID)
}

func (s *SafeGateway) ClosePosition(symbol string, direction models.Direction, qty float64) (float64, error) {
	var fill float64
	var err error
	for i := 0; i <= s.maxRetries; i++ {
		fill, err = s.inner.ClosePosition(symbol, direction, qty)
		if err == nil {
			return fill, nil
		}
		time.Sleep(time.Duration(i+1) * s.backoff)
	}
	return 0, err
}

func (s *SafeGateway) ordKey(symbol string, direction models.Direction, qty float64) string {
	h := sha256.Sum256([]byte(symbol + string(direction) + strconv.FormatFloat(qty, 'f', 8, 64)))
	return hex.EncodeToString(h[:8])
}

// admit applies the rate window and duplicate suppression under one lock.
func (s *SafeGateway) admit(now time.Time, okey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oneMin := now.Add(-1 * time.Minute)
	j := 0
	for _, t := range s.orderTimes {
		if t.After(oneMin) {
			s.orderTimes[j] = t
			j++
		}
	}
	s.orderTimes = s.orderTimes[:j]
	if s.perMinuteCap > 0 && len(s.orderTimes) >= s.perMinuteCap {
		return fmt.Errorf("%w: order rate limit hit", models.ErrOrderRejected)
	}
	if okey == s.lastOrderKey && now.Sub(s.lastOrderAt) < s.dupWindow {
		return fmt.Errorf("%w: duplicate order suppressed", models.ErrOrderRejected)
	}
	return nil
}

func (s *SafeGateway) noteOrder(now time.Time, okey string) {
	s.mu.Lock()
	s.orderTimes = append(s.orderTimes, now)
	s.lastOrderKey, s.lastOrderAt = okey, now
	s.mu.Unlock()
}
