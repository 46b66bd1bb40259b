package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"bandpilot/api"
	"bandpilot/config"
	"bandpilot/daemon"
	"bandpilot/guards"
	"bandpilot/interfaces"
	"bandpilot/ledger"
	"bandpilot/logging"
	"bandpilot/notify"
	"bandpilot/position"
	"bandpilot/risk"
	"bandpilot/status"
	"bandpilot/strategy"
	"bandpilot/tradelog"
	"bandpilot/trader"
)

var (
	cfg    *config.Config
	logger *logging.Logger
)

// Initialize logging with the provided configuration
func initLogging() error {
	logLevel := logging.LogLevel(cfg.LogLevel)
	if cfg.Debug {
		logLevel = logging.DEBUG
	}

	var err error
	logger, err = logging.NewLogger(
		cfg.LogFile,
		cfg.LogMaxSize,
		cfg.LogMaxBackups,
		cfg.LogMaxAge,
		cfg.LogCompress,
		logLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// handleDaemonFlags executes daemon control commands. Returns true when the
// process should exit after handling one.
func handleDaemonFlags(start, stop, restart bool) bool {
	if !start && !stop && !restart {
		return false
	}

	stripped := func(flagName string) []string {
		var args []string
		for _, arg := range os.Args[1:] {
			if arg != flagName {
				args = append(args, arg)
			}
		}
		return args
	}

	switch {
	case start:
		logger.Info("Starting daemon...")
		if err := daemon.StartDaemon(stripped("-start-daemon")); err != nil {
			logger.Fatal("Failed to start daemon: %v", err)
		}
	case stop:
		logger.Info("Stopping daemon...")
		if err := daemon.StopDaemon(); err != nil {
			logger.Fatal("Failed to stop daemon: %v", err)
		}
	case restart:
		logger.Info("Restarting daemon...")
		if err := daemon.RestartDaemon(stripped("-restart-daemon")); err != nil {
			logger.Fatal("Failed to restart daemon: %v", err)
		}
	}
	return true
}

// ledgerPathFor derives a per-symbol ledger snapshot path from the configured
// base path, e.g. ledger_state.json -> ledger_state.BTCUSD.json.
func ledgerPathFor(base, symbol string) string {
	if base == "" {
		return ""
	}
	clean := strings.NewReplacer("/", "", ":", "", " ", "").Replace(symbol)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + clean + ext
}

func buildTrader(symbol string, data interfaces.MarketDataProvider, gw interfaces.OrderGateway,
	riskEng *risk.Engine, classifier *strategy.Classifier, notifier interfaces.Notifier,
	journal interfaces.TradeLog) *trader.Trader {

	clock := interfaces.RealClock{}
	statePath := ledgerPathFor(cfg.LedgerStatePath, symbol)

	led, err := ledger.Restore(statePath, symbol, cfg.DailyTargetPnL, cfg.DailyLossLimit, clock.Now())
	if err != nil {
		logger.Warning("Ledger restore for %s failed, starting fresh: %v", symbol, err)
		led = ledger.NewLedger(symbol, cfg.DailyTargetPnL, cfg.DailyLossLimit, clock.Now())
	}

	return &trader.Trader{
		Symbol:     symbol,
		Config:     cfg,
		Data:       data,
		Manager:    position.NewManager(symbol, gw, cfg, riskEng, logger),
		Risk:       riskEng,
		Classifier: classifier,
		Ledger:     led,
		Notifier:   notifier,
		Journal:    journal,
		Clock:      clock,
		Logger:     logger,
		StatePath:  statePath,
	}
}

func main() {
	cfg = config.LoadConfig()

	daemonStart := flag.Bool("start-daemon", false, "Start the application as a daemon")
	daemonStop := flag.Bool("stop-daemon", false, "Stop the daemon process")
	daemonRestart := flag.Bool("restart-daemon", false, "Restart the daemon process")
	debugFlag := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	cfg.Debug = cfg.Debug || *debugFlag

	if err := initLogging(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	if handleDaemonFlags(*daemonStart, *daemonStop, *daemonRestart) {
		return
	}

	logger.Info("Application starting...")
	logger.Info("Daemon mode: %t", daemon.IsDaemon())
	logger.Info("Symbols: %s", strings.Join(cfg.Symbols, ", "))

	// Trailing ratchet tiers, file override falls back to built-ins.
	tiers := risk.DefaultTiers()
	if cfg.RatchetFile != "" {
		loaded, err := risk.LoadTiers(cfg.RatchetFile)
		if err != nil {
			logger.Warning("Ratchet file %s unusable, using defaults: %v", cfg.RatchetFile, err)
		} else {
			tiers = loaded
		}
	}
	riskEng := risk.NewEngine(tiers, cfg.SlFallbackPerc)

	data := api.NewQuoteClient(cfg, logger)

	var gw interfaces.OrderGateway = api.NewGateway(cfg, logger)
	gw = guards.NewSafeGateway(gw,
		cfg.OrdersPerMinute,
		cfg.MaxOrderRetries,
		time.Duration(cfg.RetryBackoffMs)*time.Millisecond,
		time.Duration(cfg.DupSuppressMs)*time.Millisecond,
	)

	notifier := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)

	journal, err := tradelog.NewCSVLog(cfg.TradeLogFile)
	if err != nil {
		logger.Fatal("Trade journal init: %v", err)
	}

	classifier := &strategy.Classifier{Config: cfg, Logger: logger}

	var traders []*trader.Trader
	for _, symbol := range cfg.Symbols {
		traders = append(traders, buildTrader(symbol, data, gw, riskEng, classifier, notifier, journal))
	}

	statusServer := status.StartServer(cfg, traders, logger)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, t := range traders {
		wg.Add(1)
		go func(t *trader.Trader) {
			defer wg.Done()
			t.Run(ctx)
		}(t)
	}

	notifier.Send(fmt.Sprintf("bandpilot started: %s", strings.Join(cfg.Symbols, ", ")))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.Info("Received signal %s, shutting down gracefully...", sig)

	cancel()
	wg.Wait()

	for _, t := range traders {
		t.Shutdown()
	}
	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := logger.Sync(); err != nil {
		logger.Error("Error syncing logger: %v", err)
	}
}
