// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aristath/warden/internal/domain"
)

// Config holds application configuration. Values come from three layers:
// built-in defaults, an optional config file, then environment variables.
type Config struct {
	Port          int
	APIKey        string
	AllowedOrigin string
	LogLevel      string
	DevMode       bool

	// Adapter selects the host integration: "memory" or "http".
	Adapter     string
	HostBaseURL string
	HostAPIKey  string
	HostTimeout time.Duration

	// Mode is "autonomous" or "advisor".
	Mode                  string
	GracePeriod           int64
	CheckInterval         int64
	SettlementWindowTicks int64
	CooldownTicks         int64
	ComplexityBudgetMax   int
	DecisionLogEntries    int
	ValidateRegistry      bool
	DominantRoles         []string

	// AutoTickSchedule, when set, drives the regulator from a cron job
	// that pulls state from the adapter (e.g. "@every 2s").
	AutoTickSchedule string

	Thresholds domain.Thresholds
}

// Load reads configuration from an optional .env file, an optional config
// file named by WARDEN_CONFIG, and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnvAsInt("WARDEN_PORT", 8787),
		APIKey:                getEnv("WARDEN_API_KEY", ""),
		AllowedOrigin:         getEnv("WARDEN_ALLOWED_ORIGIN", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		Adapter:               getEnv("WARDEN_ADAPTER", "memory"),
		HostBaseURL:           getEnv("WARDEN_HOST_URL", ""),
		HostAPIKey:            getEnv("WARDEN_HOST_API_KEY", ""),
		HostTimeout:           time.Duration(getEnvAsInt("WARDEN_HOST_TIMEOUT_SEC", 10)) * time.Second,
		Mode:                  getEnv("WARDEN_MODE", "autonomous"),
		GracePeriod:           int64(getEnvAsInt("WARDEN_GRACE_PERIOD", 50)),
		CheckInterval:         int64(getEnvAsInt("WARDEN_CHECK_INTERVAL", 5)),
		SettlementWindowTicks: int64(getEnvAsInt("WARDEN_SETTLEMENT_WINDOW", 200)),
		CooldownTicks:         int64(getEnvAsInt("WARDEN_COOLDOWN_TICKS", 15)),
		ComplexityBudgetMax:   getEnvAsInt("WARDEN_COMPLEXITY_BUDGET", 20),
		DecisionLogEntries:    getEnvAsInt("WARDEN_DECISION_LOG_ENTRIES", 1000),
		ValidateRegistry:      getEnvAsBool("WARDEN_VALIDATE_REGISTRY", true),
		AutoTickSchedule:      getEnv("WARDEN_AUTO_TICK", ""),
		Thresholds:            domain.DefaultThresholds(),
	}

	if path := getEnv("WARDEN_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays values from a viper-readable config file. Only keys
// present in the file override what the environment produced.
func (c *Config) loadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if v.IsSet("port") {
		c.Port = v.GetInt("port")
	}
	if v.IsSet("apiKey") {
		c.APIKey = v.GetString("apiKey")
	}
	if v.IsSet("allowedOrigin") {
		c.AllowedOrigin = v.GetString("allowedOrigin")
	}
	if v.IsSet("mode") {
		c.Mode = v.GetString("mode")
	}
	if v.IsSet("gracePeriod") {
		c.GracePeriod = v.GetInt64("gracePeriod")
	}
	if v.IsSet("checkInterval") {
		c.CheckInterval = v.GetInt64("checkInterval")
	}
	if v.IsSet("settlementWindowTicks") {
		c.SettlementWindowTicks = v.GetInt64("settlementWindowTicks")
	}
	if v.IsSet("cooldownTicks") {
		c.CooldownTicks = v.GetInt64("cooldownTicks")
	}
	if v.IsSet("complexityBudgetMax") {
		c.ComplexityBudgetMax = v.GetInt("complexityBudgetMax")
	}
	if v.IsSet("dominantRoles") {
		c.DominantRoles = v.GetStringSlice("dominantRoles")
	}
	if v.IsSet("autoTickSchedule") {
		c.AutoTickSchedule = v.GetString("autoTickSchedule")
	}
	if v.IsSet("thresholds") {
		if err := v.UnmarshalKey("thresholds", &c.Thresholds); err != nil {
			return fmt.Errorf("failed to parse thresholds: %w", err)
		}
	}
	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.Mode {
	case "autonomous", "advisor":
	default:
		return fmt.Errorf("invalid mode %q, want autonomous or advisor", c.Mode)
	}
	switch c.Adapter {
	case "memory":
	case "http":
		if c.HostBaseURL == "" {
			return fmt.Errorf("WARDEN_HOST_URL required for the http adapter")
		}
	default:
		return fmt.Errorf("invalid adapter %q, want memory or http", c.Adapter)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
