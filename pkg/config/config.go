package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the live trader.
type Config struct {
	// Broker
	BrokerAPIKey     string
	BrokerAPISecret  string
	BrokerEndpoint   string
	DryRun           bool    // paper gateway instead of a live broker
	GatewayRPS       float64 // broker requests per second, 0 disables throttling
	GatewayBurst     int
	PaperBalance     float64
	PaperFeeRate     float64 // decimal (e.g. 0.0004 = 4 bps)
	PaperSlippageBps float64

	// Loop
	Symbols          []string
	Timeframe        string
	LoopInterval     time.Duration
	SnapshotInterval time.Duration
	UseMockFeed      bool

	// Execution
	MaxRetryAttempts int
	RetryBackoffBase float64 // seconds; sleep = base^attempt
	OrderTimeout     time.Duration

	// Risk. Percent env vars are converted to fractions on load.
	RiskPercent       float64 // fraction of balance risked per trade
	StopDistancePct   float64 // stop distance as a fraction of entry price
	MaxPositionSize   float64
	MaxDailyTrades    int
	MaxDailyLossPct   float64 // fraction of BalanceReference
	BalanceReference  float64
	KillSwitchFile    string
	KillSwitchEnabled bool

	// Database
	DBPath string

	// Operator API
	OpsPort         string
	OpsJWTSecret    string
	OpsPasswordHash string // bcrypt hash for the operator password
	OpsEnabled      bool

	// Optional YAML file with per-symbol overrides.
	SymbolsFile string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		BrokerAPIKey:     os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:  os.Getenv("BROKER_API_SECRET"),
		BrokerEndpoint:   getEnv("BROKER_ENDPOINT", ""),
		DryRun:           getEnv("DRY_RUN", "true") == "true",
		GatewayRPS:       getEnvFloat("GATEWAY_RPS", 5),
		GatewayBurst:     getEnvInt("GATEWAY_BURST", 10),
		PaperBalance:     getEnvFloat("PAPER_INITIAL_BALANCE", 10000.0),
		PaperFeeRate:     getEnvFloat("PAPER_FEE_RATE", 0.0004),
		PaperSlippageBps: getEnvFloat("PAPER_SLIPPAGE_BPS", 2),

		Symbols:          splitAndTrim(getEnv("SYMBOLS", "EURUSD,GBPUSD")),
		Timeframe:        getEnv("TIMEFRAME", "M5"),
		LoopInterval:     time.Duration(getEnvInt("LOOP_INTERVAL_SECONDS", 60)) * time.Second,
		SnapshotInterval: time.Duration(getEnvInt("SNAPSHOT_INTERVAL_MINUTES", 5)) * time.Minute,
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",

		MaxRetryAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		RetryBackoffBase: getEnvFloat("RETRY_BACKOFF_BASE", 2.0),
		OrderTimeout:     time.Duration(getEnvInt("ORDER_TIMEOUT_SECONDS", 30)) * time.Second,

		RiskPercent:       getEnvFloat("RISK_PERCENT", 1.0) / 100,
		StopDistancePct:   getEnvFloat("STOP_DISTANCE_PERCENT", 2.0) / 100,
		MaxPositionSize:   getEnvFloat("MAX_POSITION_SIZE", 1.0),
		MaxDailyTrades:    getEnvInt("MAX_DAILY_TRADES", 10),
		MaxDailyLossPct:   getEnvFloat("MAX_DAILY_LOSS_PERCENT", 5.0) / 100,
		BalanceReference:  getEnvFloat("BALANCE_REFERENCE", 0),
		KillSwitchFile:    getEnv("KILL_SWITCH_FILE", "./KILL_SWITCH"),
		KillSwitchEnabled: getEnv("KILL_SWITCH_ENABLED", "true") == "true",

		DBPath: getEnv("DB_PATH", "./data/livetrader.db"),

		OpsPort:         getEnv("OPS_PORT", "8080"),
		OpsJWTSecret:    getEnv("OPS_JWT_SECRET", "dev-secret"),
		OpsPasswordHash: os.Getenv("OPS_PASSWORD_HASH"),
		OpsEnabled:      getEnv("OPS_ENABLED", "true") == "true",

		SymbolsFile: getEnv("SYMBOLS_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: SYMBOLS must list at least one symbol")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("config: MAX_RETRY_ATTEMPTS must be >= 1, got %d", c.MaxRetryAttempts)
	}
	if c.RetryBackoffBase <= 0 {
		return fmt.Errorf("config: RETRY_BACKOFF_BASE must be positive, got %v", c.RetryBackoffBase)
	}
	if c.RiskPercent <= 0 || c.RiskPercent > 1 {
		return fmt.Errorf("config: RISK_PERCENT out of range (0, 100]: %v", c.RiskPercent*100)
	}
	if c.LoopInterval <= 0 {
		return fmt.Errorf("config: LOOP_INTERVAL_SECONDS must be positive")
	}
	if !c.DryRun && c.BrokerAPIKey == "" {
		return fmt.Errorf("config: BROKER_API_KEY required when DRY_RUN=false")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
