package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LegacyOverrideEnv is the endpoint override variable understood by earlier releases.
const LegacyOverrideEnv = "OVERLOAD_LCD"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Address          string
	LCD              string
	PollInterval     time.Duration
	FailureThreshold int
	ProbeTimeout     time.Duration
	PageTimeout      time.Duration
	PageLimit        int
	Out              string
	PGDSN            string
	MetricsAddr      string
	MaxRetries       int
	RetryBackoff     time.Duration
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CWSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("lcd", "CWSTATE_LCD", LegacyOverrideEnv); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("failure-threshold", 3)
	v.SetDefault("probe-timeout", 5*time.Second)
	v.SetDefault("page-timeout", 10*time.Second)
	v.SetDefault("page-limit", 100)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cwstate")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Address:          strings.TrimSpace(v.GetString("address")),
		LCD:              strings.TrimSpace(v.GetString("lcd")),
		PollInterval:     v.GetDuration("poll-interval"),
		FailureThreshold: v.GetInt("failure-threshold"),
		ProbeTimeout:     v.GetDuration("probe-timeout"),
		PageTimeout:      v.GetDuration("page-timeout"),
		PageLimit:        v.GetInt("page-limit"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		MetricsAddr:      v.GetString("metrics-addr"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate rejects settings the watcher cannot run with.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.PageLimit < 1 {
		return fmt.Errorf("page limit must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}
