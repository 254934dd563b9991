package main

import (
	"os"
	"strconv"
	"time"
)

// Config holds all localmcp configuration, one env family shared by every
// subcommand.
type Config struct {
	ConfigPath     string
	DashboardPort  string
	StatusInterval time.Duration
	ProbeTimeout   time.Duration

	SQLPort string
	SQLDB   string

	SlackPort      string
	SlackTokenFile string

	TelegramPort      string
	TelegramTokenFile string

	ModelPort              string
	ModelBackend           string
	ModelAPIKey            string
	ModelID                string
	ModelDevice            string
	Model4Bit              bool
	ModelFlashAttn         bool
	ModelBetterTransformer bool
	GPUName                string
	GPUMemoryTotal         float64
	ModelTimeout           time.Duration
	ModelMaxRetries        int
	ModelRetryDelay        time.Duration
}

// initConfig loads config from environment variables.
func initConfig() Config {
	return Config{
		ConfigPath:     env("LOCALMCP_CONFIG", "config.json"),
		DashboardPort:  env("LOCALMCP_DASHBOARD_PORT", "9000"),
		StatusInterval: envDuration("LOCALMCP_STATUS_INTERVAL", 30*time.Second),
		ProbeTimeout:   envDuration("LOCALMCP_PROBE_TIMEOUT", 2*time.Second),

		SQLPort: env("LOCALMCP_SQL_PORT", "8002"),
		SQLDB:   env("LOCALMCP_SQL_DB", "./database.db"),

		SlackPort:      env("LOCALMCP_SLACK_PORT", "8004"),
		SlackTokenFile: env("LOCALMCP_SLACK_TOKEN_FILE", "slack_token.json"),

		TelegramPort:      env("LOCALMCP_TELEGRAM_PORT", "8005"),
		TelegramTokenFile: env("LOCALMCP_TELEGRAM_TOKEN_FILE", "telegram_token.json"),

		ModelPort:              env("LOCALMCP_MODEL_PORT", "7001"),
		ModelBackend:           env("LOCALMCP_MODEL_BACKEND", "http://127.0.0.1:8080/v1"),
		ModelAPIKey:            env("LOCALMCP_MODEL_API_KEY", ""),
		ModelID:                env("LOCALMCP_MODEL_ID", "qwq/qwq-32b"),
		ModelDevice:            env("LOCALMCP_MODEL_DEVICE", "cuda"),
		Model4Bit:              envBool("LOCALMCP_MODEL_4BIT", true),
		ModelFlashAttn:         envBool("LOCALMCP_MODEL_FLASH_ATTN", true),
		ModelBetterTransformer: envBool("LOCALMCP_MODEL_BETTER_TRANSFORMER", false),
		GPUName:                env("LOCALMCP_GPU_NAME", ""),
		GPUMemoryTotal:         envFloat("LOCALMCP_GPU_MEMORY_TOTAL", 0),
		ModelTimeout:           envDuration("LOCALMCP_MODEL_TIMEOUT", 120*time.Second),
		ModelMaxRetries:        envInt("LOCALMCP_MODEL_MAX_RETRIES", 2),
		ModelRetryDelay:        envDuration("LOCALMCP_MODEL_RETRY_DELAY", time.Second),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envDuration parses a Go duration string like "30s" or "4h" from env.
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
