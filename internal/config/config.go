package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultPrimaryRPC = "https://api.mainnet-beta.solana.com"

// Config 服务运行配置（全部来自环境变量，.env 可选）
type Config struct {
	PrimaryRPCURL    string
	ExtraRPCURLs     string // 逗号分隔
	DisableFallbacks bool

	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	BaseBackoff       time.Duration
	Jitter            time.Duration
	RateLimitCooldown time.Duration
	Retries           int
	LatencyWindow     int
	MaxRPS            float64
	DailyQuota        int64

	ListenAddr        string
	DatabaseURL       string
	SnapshotInterval  time.Duration
	SnapshotRetention time.Duration

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	_ = godotenv.Load() // .env文件是可选的

	return &Config{
		PrimaryRPCURL:    getEnv("SOLANA_RPC_URL", defaultPrimaryRPC),
		ExtraRPCURLs:     getEnv("SOLANA_RPC_URLS", ""),
		DisableFallbacks: getEnvAsBool("SOLANA_RPC_DISABLE_FALLBACKS", false),

		ReadTimeout:       getEnvAsSeconds("RPC_READ_TIMEOUT_SECONDS", 10),
		ConnectTimeout:    getEnvAsSeconds("RPC_CONNECT_TIMEOUT_SECONDS", 4),
		BaseBackoff:       getEnvAsSeconds("RPC_BASE_BACKOFF_SECONDS", 0.08),
		Jitter:            getEnvAsSeconds("RPC_JITTER_SECONDS", 0.04),
		RateLimitCooldown: getEnvAsSeconds("RPC_RATE_LIMIT_COOLDOWN_SECONDS", 0.35),
		Retries:           int(getEnvAsInt64("RPC_RETRIES", 3)),
		LatencyWindow:     int(getEnvAsInt64("RPC_LATENCY_WINDOW", 200)),
		MaxRPS:            getEnvAsFloat("RPC_MAX_RPS", 0),
		DailyQuota:        getEnvAsInt64("RPC_DAILY_QUOTA", 0),

		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SnapshotInterval:  getEnvAsSeconds("SNAPSHOT_INTERVAL_SECONDS", 30),
		SnapshotRetention: time.Duration(getEnvAsInt64("SNAPSHOT_RETENTION_HOURS", 24)) * time.Hour,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// ExtraURLList splits ExtraRPCURLs on commas, dropping blanks.
func (c *Config) ExtraURLList() []string {
	var out []string
	for _, u := range strings.Split(c.ExtraRPCURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		slog.Warn("invalid_config_value", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil || value < 0 {
		slog.Warn("invalid_config_value", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsSeconds 解析秒数（允许小数，如 0.35）
func getEnvAsSeconds(key string, defaultSeconds float64) time.Duration {
	secs := getEnvAsFloat(key, defaultSeconds)
	return time.Duration(secs * float64(time.Second))
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("invalid_config_value", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}
