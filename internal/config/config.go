// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the engine.
type Config struct {
	Port     int
	LogLevel string

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
	SecretKey   string

	// Trading economics. Fee model is flat-rate with a floor:
	// brokerage = max(qty × price × FeeRate, MinFee).
	InitialCash decimal.Decimal
	FeeRate     decimal.Decimal
	MinFee      decimal.Decimal

	// AI insight generation. Empty key means fallback-only mode.
	GeminiAPIKey   string
	GeminiEndpoint string
	InsightTimeout time.Duration

	// Optional YAML file overriding the built-in learning catalog.
	ContentFile string

	// Interval between simulated market price ticks.
	TickInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadDotenv loads a .env file if present. Missing files are fine;
// production sets real environment variables.
func LoadDotenv() {
	_ = godotenv.Load(".env")
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	initialCash, err := getDecimal("INITIAL_CASH", "100000")
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CASH: %w", err)
	}
	if initialCash.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("INITIAL_CASH must be positive, got %s", initialCash)
	}

	feeRate, err := getDecimal("FEE_RATE", "0.0003")
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() {
		return nil, fmt.Errorf("FEE_RATE must be non-negative, got %s", feeRate)
	}

	minFee, err := getDecimal("MIN_FEE", "20")
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_FEE: %w", err)
	}
	if minFee.IsNegative() {
		return nil, fmt.Errorf("MIN_FEE must be non-negative, got %s", minFee)
	}

	cacheTTL, err := getDuration("CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	insightTimeout, err := getDuration("INSIGHT_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid INSIGHT_TIMEOUT: %w", err)
	}

	tickInterval, err := getDuration("TICK_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabaseURL:     getStr("DATABASE_URL", ""),
		RedisURL:        getStr("REDIS_URL", ""),
		CacheTTL:        cacheTTL,
		SecretKey:       getStr("SECRET_KEY", ""),
		InitialCash:     initialCash,
		FeeRate:         feeRate,
		MinFee:          minFee,
		GeminiAPIKey:    getStr("GEMINI_API_KEY", ""),
		GeminiEndpoint:  getStr("GEMINI_ENDPOINT", defaultGeminiEndpoint),
		InsightTimeout:  insightTimeout,
		ContentFile:     getStr("CONTENT_FILE", ""),
		TickInterval:    tickInterval,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key, defaultVal string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	return decimal.NewFromString(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
