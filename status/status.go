package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bandpilot/config"
	"bandpilot/logging"
	"bandpilot/trader"
)

type statusResponse struct {
	Time    time.Time       `json:"time"`
	Traders []trader.Status `json:"traders"`
}

var upgrader = websocket.Upgrader{
	// Local diagnostics endpoint, origin checks add nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server exposes health, status JSON, prometheus metrics, and a websocket
// stream of trader snapshots.
type Server struct {
	cfg     *config.Config
	traders []*trader.Trader
	logger  logging.LoggerInterface
}

// StartServer starts the local HTTP status server for diagnostics. Returns
// nil when the address disables it.
func StartServer(cfg *config.Config, traders []*trader.Trader, logger logging.LoggerInterface) *http.Server {
	addr := strings.TrimSpace(cfg.StatusAddr)
	if addr == "" || strings.EqualFold(addr, "off") || strings.EqualFold(addr, "disabled") {
		logger.Info("Status server disabled")
		return nil
	}

	s := &Server{cfg: cfg, traders: traders, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server error: %v", err)
		}
	}()

	return server
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, "bandpilot running: %s\n", strings.Join(s.cfg.Symbols, ", "))
}

func (s *Server) snapshot() statusResponse {
	resp := statusResponse{Time: time.Now()}
	for _, t := range s.traders {
		resp.Traders = append(resp.Traders, t.Status())
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.snapshot()); err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
	}
}

// handleWS pushes a status snapshot to the client every few seconds until
// the connection drops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Status websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			s.logger.Debug("Status websocket write: %v", err)
			return
		}
		<-ticker.C
	}
}
