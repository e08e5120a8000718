package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed
	FeedURL string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string

	// Subscription
	Symbols string

	// Timeframes (comma-separated seconds, e.g. "5,60,300")
	EnabledTFs string

	// Pipeline
	QueueCap int

	// Indicators
	EMAFastPeriod int
	EMASlowPeriod int
	RSIPeriod     int

	// Structure detection
	StructureLookback    int
	LevelTolerancePct    float64
	MaxLevels            int
	BreakoutMult         float64
	ATRPeriod            int
	ConsolidationCandles int
	ConsolidationMult    float64

	// Signal evaluation
	MinConfirmations int
	RSIOversold      float64
	RSIOverbought    float64
	CooldownBars     int

	// Risk
	RRRatio    float64
	RRBandMin  float64
	RRBandMax  float64
	MinStopPct float64

	// Simulation
	MaxTradeDuration time.Duration

	// Notifications
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		FeedURL: getEnv("FEED_URL", "ws://localhost:9001/ws"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/tradepulse.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Symbols: getEnv("SYMBOLS", "R_100"),

		// Default TFs: 5s, 1m, 5m
		EnabledTFs: getEnv("ENABLED_TFS", "5,60,300"),

		QueueCap: getInt("QUEUE_CAP", 256),

		EMAFastPeriod: getInt("EMA_FAST_PERIOD", 9),
		EMASlowPeriod: getInt("EMA_SLOW_PERIOD", 21),
		RSIPeriod:     getInt("RSI_PERIOD", 14),

		StructureLookback:    getInt("STRUCTURE_LOOKBACK", 2),
		LevelTolerancePct:    getFloat("LEVEL_TOLERANCE_PCT", 0.0015),
		MaxLevels:            getInt("MAX_LEVELS", 10),
		BreakoutMult:         getFloat("BREAKOUT_MULT", 1.2),
		ATRPeriod:            getInt("ATR_PERIOD", 10),
		ConsolidationCandles: getInt("CONSOLIDATION_CANDLES", 10),
		ConsolidationMult:    getFloat("CONSOLIDATION_MULT", 2.0),

		MinConfirmations: getInt("MIN_CONFIRMATIONS", 2),
		RSIOversold:      getFloat("RSI_OVERSOLD", 35),
		RSIOverbought:    getFloat("RSI_OVERBOUGHT", 65),
		CooldownBars:     getInt("COOLDOWN_BARS", 3),

		RRRatio:    getFloat("RR_RATIO", 2.0),
		RRBandMin:  getFloat("RR_BAND_MIN", 1.0),
		RRBandMax:  getFloat("RR_BAND_MAX", 3.0),
		MinStopPct: getFloat("MIN_STOP_PCT", 0.0002),

		MaxTradeDuration: getDuration("MAX_TRADE_DURATION", 30*time.Minute),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseSymbols splits the Symbols string into a clean slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	syms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		syms = append(syms, p)
	}
	return syms
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
