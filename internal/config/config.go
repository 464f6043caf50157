package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPersona establishes the assistant's behavior; sent as the first
// entry of every assembled context. Loaded once at startup, never reloaded.
const DefaultPersona = "You are Ella, a warm and helpful fitness and mental wellness assistant."

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	PersonaInstruction string
	ContextWindow      int

	ProviderMode    string
	ProviderURL     string
	ProviderAPIKey  string
	ProviderModel   string
	ProviderTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "ella"),
		AllowAnyOrigin:     false,
		PersonaInstruction: envOrDefault("APP_PERSONA_INSTRUCTION", DefaultPersona),
		ContextWindow:      4,
		ProviderMode:       envOrDefault("PROVIDER_MODE", "auto"),
		ProviderURL:        trimmedEnv("PROVIDER_URL"),
		ProviderAPIKey:     trimmedEnv("PROVIDER_API_KEY"),
		// Model the upstream contract was written against.
		ProviderModel:   envOrDefault("PROVIDER_MODEL", "mixtral-8x7b-32768"),
		ProviderTimeout: 30 * time.Second,
		DatabaseURL:     trimmedEnv("DATABASE_URL"),
		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("APP_CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ContextWindow < 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_WINDOW must be >= 0")
	}
	if cfg.ProviderTimeout < time.Second {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be at least 1s")
	}
	if strings.TrimSpace(cfg.PersonaInstruction) == "" {
		return Config{}, fmt.Errorf("APP_PERSONA_INSTRUCTION must not be blank")
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
