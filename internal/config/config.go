package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"crossway/internal/input"
	"crossway/internal/signal"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	TickInterval      time.Duration
	PublishInterval   time.Duration
	SignalPolicy      signal.Policy
	GreenDuration     time.Duration
	ClearanceDuration time.Duration
	RandomSeed        uint64

	CellSize int
	KeyMap   input.Variant

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FrameTTL      time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

func Load() (*Config, error) {
	policy, err := signal.ParsePolicy(getEnv("SIGNAL_POLICY", "adaptive"))
	if err != nil {
		return nil, fmt.Errorf("SIGNAL_POLICY: %w", err)
	}

	variant, err := input.ParseVariant(getEnv("KEYMAP_VARIANT", "standard"))
	if err != nil {
		return nil, fmt.Errorf("KEYMAP_VARIANT: %w", err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		TickInterval:      getDurationEnv("TICK_INTERVAL", 16*time.Millisecond),
		PublishInterval:   getDurationEnv("PUBLISH_INTERVAL", 50*time.Millisecond),
		SignalPolicy:      policy,
		GreenDuration:     getDurationEnv("GREEN_DURATION", signal.DefaultGreenDuration),
		ClearanceDuration: getDurationEnv("CLEARANCE_DURATION", signal.DefaultClearanceDuration),
		RandomSeed:        getUint64Env("RANDOM_SEED", uint64(time.Now().UnixNano())),

		CellSize: getIntEnv("CELL_SIZE", 100),
		KeyMap:   variant,

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		FrameTTL:      getDurationEnv("FRAME_TTL", 10*time.Second),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 600),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.PublishInterval <= 0 {
		return fmt.Errorf("PUBLISH_INTERVAL must be positive, got %s", c.PublishInterval)
	}
	if c.GreenDuration <= 0 || c.ClearanceDuration <= 0 {
		return fmt.Errorf("signal durations must be positive")
	}
	if c.CellSize <= 0 {
		return fmt.Errorf("CELL_SIZE must be positive, got %d", c.CellSize)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint64Env(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
