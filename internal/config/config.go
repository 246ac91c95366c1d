package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the agent platform service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DatabaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	DefaultModel       string
	DefaultMaxTokens   int64
	DefaultTemperature float64

	TTSVoice    string
	AudioDir    string
	AudioMaxAge time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "agent_platform"),
		AllowAnyOrigin:     false,
		DatabaseURL:        trimmedEnv("DATABASE_URL"),
		OpenAIAPIKey:       trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:      trimmedEnv("OPENAI_BASE_URL"),
		DefaultModel:       envOrDefault("DEFAULT_MODEL", "gpt-3.5-turbo"),
		DefaultMaxTokens:   1000,
		DefaultTemperature: 0.7,
		TTSVoice:           envOrDefault("TTS_VOICE", "alloy"),
		AudioDir:           envOrDefault("AUDIO_DIR", "audio_files"),
		AudioMaxAge:        24 * time.Hour,
		ShutdownTimeout:    15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioMaxAge, err = durationFromEnv("AUDIO_MAX_AGE", cfg.AudioMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	maxTokens, err := intFromEnv("DEFAULT_MAX_TOKENS", int(cfg.DefaultMaxTokens))
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMaxTokens = int64(maxTokens)
	cfg.DefaultTemperature, err = floatFromEnv("DEFAULT_TEMPERATURE", cfg.DefaultTemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.DefaultMaxTokens <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_MAX_TOKENS must be positive")
	}
	if cfg.DefaultTemperature < 0 || cfg.DefaultTemperature > 2 {
		return Config{}, fmt.Errorf("DEFAULT_TEMPERATURE must be between 0 and 2")
	}
	if cfg.AudioMaxAge < time.Minute {
		return Config{}, fmt.Errorf("AUDIO_MAX_AGE must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
