package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Instruments and timeframes
	Symbols        []string
	FastTimeframe  string
	SlowTimeframe  string
	DailyTimeframe string
	UseDailyBias   bool
	CandleCount    int

	// Indicator windows
	RSIPeriod int
	BBWindow  int
	BBMult    float64

	// Classifier gating
	RSINeutralHalfWidth float64 // half-width of the no-trade band around RSI 50
	CooldownSec         int     // no new entries for this long after a take-profit close
	HourCutoffMin       int     // no new entries in the last N minutes of an hourly candle, 0 disables

	// Entry and lifecycle
	OrderQty          float64
	EntryBufferPerc   float64 // stop-entry trigger offset from best bid/ask
	PendingTimeoutSec int     // auto-cancel unfilled stop-entry orders after this long
	SlFallbackPerc    float64 // percent stop when the structural level is on the wrong side

	// Daily ledger thresholds
	DailyTargetPnL  float64
	DailyLossLimit  float64 // positive magnitude; 0 disables
	LedgerStatePath string

	// Trailing ratchet tiers (optional YAML override)
	RatchetFile string

	// Decision loop
	TickIntervalSec int

	// Quote provider (candles)
	QuoteRESTHost string
	QuoteAPIKeys  []string

	// Exchange gateway
	RESTHost   string
	APIKey     string
	APISecret  string
	RecvWindow string

	// Order safety layer
	OrdersPerMinute int
	MaxOrderRetries int
	RetryBackoffMs  int
	DupSuppressMs   int

	// Telegram notifier
	TelegramToken  string
	TelegramChatID int64

	// Trade journal
	TradeLogFile string

	// Logging configuration
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int // number of files
	LogMaxAge     int // days
	LogCompress   bool
	LogLevel      int // 0=DEBUG, 1=INFO, 2=WARNING, 3=ERROR

	// Status server configuration
	StatusAddr string

	// Daemon configuration
	DaemonMode bool
	Debug      bool
}

// LoadConfig loads configuration from a .env file (if present) and
// environment variables, falling back to defaults.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Symbols:        splitList(getEnv("SYMBOLS", "BTC/USD")),
		FastTimeframe:  getEnv("FAST_TIMEFRAME", "5min"),
		SlowTimeframe:  getEnv("SLOW_TIMEFRAME", "1h"),
		DailyTimeframe: getEnv("DAILY_TIMEFRAME", "1day"),
		UseDailyBias:   getEnvAsBool("USE_DAILY_BIAS", false),
		CandleCount:    getEnvAsInt("CANDLE_COUNT", 50),

		RSIPeriod: getEnvAsInt("RSI_PERIOD", 14),
		BBWindow:  getEnvAsInt("BB_WINDOW", 20),
		BBMult:    getEnvAsFloat("BB_MULT", 2.0),

		RSINeutralHalfWidth: getEnvAsFloat("RSI_NEUTRAL_HALF_WIDTH", 5.0),
		CooldownSec:         getEnvAsInt("COOLDOWN_SEC", 1800),
		HourCutoffMin:       getEnvAsInt("HOUR_CUTOFF_MIN", 10),

		OrderQty:          getEnvAsFloat("ORDER_QTY", 1.0),
		EntryBufferPerc:   getEnvAsFloat("ENTRY_BUFFER_PERC", 0.0005),
		PendingTimeoutSec: getEnvAsInt("PENDING_TIMEOUT_SEC", 600),
		SlFallbackPerc:    getEnvAsFloat("SL_FALLBACK_PERC", 0.01),

		DailyTargetPnL:  getEnvAsFloat("DAILY_TARGET_PNL", 100.0),
		DailyLossLimit:  getEnvAsFloat("DAILY_LOSS_LIMIT", 0),
		LedgerStatePath: getEnv("LEDGER_STATE_PATH", "ledger_state.json"),

		RatchetFile: getEnv("RATCHET_FILE", ""),

		TickIntervalSec: getEnvAsInt("TICK_INTERVAL_SEC", 60),

		QuoteRESTHost: getEnv("QUOTE_REST_HOST", "https://api.twelvedata.com"),
		QuoteAPIKeys:  splitList(getEnv("QUOTE_API_KEYS", "")),

		RESTHost:   getEnv("EXCHANGE_REST_HOST", "https://api-demo.bybit.com"),
		APIKey:     getEnv("EXCHANGE_API_KEY", ""),
		APISecret:  getEnv("EXCHANGE_API_SECRET", ""),
		RecvWindow: getEnv("EXCHANGE_RECV_WINDOW", "5000"),

		OrdersPerMinute: getEnvAsInt("ORDERS_PER_MINUTE", 6),
		MaxOrderRetries: getEnvAsInt("MAX_ORDER_RETRIES", 2),
		RetryBackoffMs:  getEnvAsInt("RETRY_BACKOFF_MS", 250),
		DupSuppressMs:   getEnvAsInt("DUP_SUPPRESS_MS", 5000),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnvAsInt64("TELEGRAM_CHAT_ID", 0),

		TradeLogFile: getEnv("TRADE_LOG_FILE", "trades.csv"),

		LogFile:       getEnv("LOG_FILE", "logs/bandpilot.log"),
		LogMaxSize:    10,
		LogMaxBackups: 5,
		LogMaxAge:     30,
		LogCompress:   true,
		LogLevel:      getEnvAsInt("LOG_LEVEL", 1),

		StatusAddr: getEnv("STATUS_ADDR", "127.0.0.1:6061"),

		DaemonMode: getEnvAsBool("DAEMON_MODE", false),
		Debug:      getEnvAsBool("DEBUG", false),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsBool gets an environment variable as a boolean value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	switch value {
	case "true", "1", "yes", "on", "True", "TRUE":
		return true
	default:
		return false
	}
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
