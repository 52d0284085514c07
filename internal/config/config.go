// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Run log settings.
	LogPath string // Append-only CSV run log.

	// Inference settings.
	InferenceBaseURL string // Chat-completions router base URL.
	InferenceToken   string // Empty token enables offline mock mode.
	InferenceModel   string

	// Version stamps written into every run record.
	AgentVersion  string
	PromptVersion string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Rate limiting.
	RateLimitRPS   float64 // Sustained requests per second per client.
	RateLimitBurst int

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	MaxAuditLimit       int // Upper bound for audit page size.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("OPSDECK_PORT", 8080),
		ReadTimeout:         envDuration("OPSDECK_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("OPSDECK_WRITE_TIMEOUT", 90*time.Second),
		LogPath:             envStr("OPSDECK_LOG_PATH", "data/agent_runs.csv"),
		InferenceBaseURL:    envStr("OPSDECK_INFERENCE_BASE_URL", "https://router.huggingface.co/v1"),
		InferenceToken:      envStr("HF_TOKEN", ""),
		InferenceModel:      envStr("OPSDECK_INFERENCE_MODEL", "meta-llama/Llama-3.1-8B-Instruct"),
		AgentVersion:        envStr("OPSDECK_AGENT_VERSION", "v2.1"),
		PromptVersion:       envStr("OPSDECK_PROMPT_VERSION", "v1.3"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "opsdeck"),
		RateLimitRPS:        envFloat("OPSDECK_RATE_LIMIT_RPS", 10),
		RateLimitBurst:      envInt("OPSDECK_RATE_LIMIT_BURST", 20),
		LogLevel:            envStr("OPSDECK_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("OPSDECK_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		MaxAuditLimit:       envInt("OPSDECK_MAX_AUDIT_LIMIT", 500),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: OPSDECK_PORT must be a valid port number")
	}
	if c.LogPath == "" {
		return fmt.Errorf("config: OPSDECK_LOG_PATH is required")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("config: OPSDECK_RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: OPSDECK_RATE_LIMIT_BURST must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: OPSDECK_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.MaxAuditLimit <= 0 {
		return fmt.Errorf("config: OPSDECK_MAX_AUDIT_LIMIT must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
