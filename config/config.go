// Package config loads the backtest CLI configuration from an optional
// YAML/JSON file overlaid with environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trend-backtest/internal/backtest"
	"trend-backtest/internal/indicator"
	"trend-backtest/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	Backtest backtest.Config `json:"backtest" yaml:"backtest"`
	Sizer    risk.ATRSizer   `json:"sizer" yaml:"sizer"`

	// Volatility selects the ATR estimator: "true_range" or "synthetic".
	Volatility      string  `json:"volatility" yaml:"volatility"`
	SyntheticSpread float64 `json:"synthetic_spread" yaml:"synthetic_spread"`

	Symbols []string     `json:"symbols" yaml:"symbols"`
	Source  SourceConfig `json:"source" yaml:"source"`

	// Infrastructure
	SQLitePath    string `json:"sqlite_path" yaml:"sqlite_path"` // results database; "" disables
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`   // "" disables publishing
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	MetricsAddr   string `json:"metrics_addr" yaml:"metrics_addr"` // "" disables the server
	LogLevel      string `json:"log_level" yaml:"log_level"`
}

// SourceConfig says where bars come from.
type SourceConfig struct {
	Kind       string `json:"kind" yaml:"kind"` // "sqlite" or "csv"
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	CSVDir     string `json:"csv_dir" yaml:"csv_dir"`
	AfterTS    int64  `json:"after_ts" yaml:"after_ts"`

	// Timeframe resamples loaded bars, e.g. "24h" or "168h". "" keeps them as stored.
	Timeframe string `json:"timeframe,omitempty" yaml:"timeframe"`
}

// TimeframeDuration parses Timeframe; 0 means no resampling.
func (s SourceConfig) TimeframeDuration() (time.Duration, error) {
	if s.Timeframe == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("source.timeframe: %w", err)
	}
	if d < time.Second || d%time.Second != 0 {
		return 0, fmt.Errorf("source.timeframe must be a whole number of seconds, got %s", s.Timeframe)
	}
	return d, nil
}

// Default returns a configuration with the stock strategy settings.
func Default() *Config {
	return &Config{
		Backtest:        backtest.DefaultConfig(),
		Sizer:           risk.DefaultATRSizer(),
		Volatility:      "true_range",
		SyntheticSpread: 0.001,
		Source: SourceConfig{
			Kind:       "sqlite",
			SQLitePath: "data/bars.db",
			CSVDir:     "data/csv",
		},
		SQLitePath: "data/backtest.db",
		LogLevel:   "info",
	}
}

// Load reads configuration from environment variables on top of defaults.
func Load() *Config {
	c := Default()
	c.applyEnv()
	return c
}

// LoadFile loads path (YAML, falling back to JSON), overlays environment
// variables and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		if jerr := json.Unmarshal(data, c); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	if c.Sizer.StopMultiple < 0 || c.Sizer.MaxQty < 0 {
		return fmt.Errorf("sizer.stop_multiple and sizer.max_qty must be >= 0")
	}
	switch c.Volatility {
	case "", "true_range":
	case "synthetic":
		if !(c.SyntheticSpread > 0 && c.SyntheticSpread < 1) {
			return fmt.Errorf("synthetic_spread must be in (0, 1), got %v", c.SyntheticSpread)
		}
	default:
		return fmt.Errorf("volatility must be 'true_range' or 'synthetic', got %q", c.Volatility)
	}
	switch c.Source.Kind {
	case "sqlite":
		if c.Source.SQLitePath == "" {
			return fmt.Errorf("source.sqlite_path required for sqlite source")
		}
	case "csv":
		if c.Source.CSVDir == "" {
			return fmt.Errorf("source.csv_dir required for csv source")
		}
	default:
		return fmt.Errorf("source.kind must be 'sqlite' or 'csv', got %q", c.Source.Kind)
	}
	if _, err := c.Source.TimeframeDuration(); err != nil {
		return err
	}
	return nil
}

// Estimator returns the configured ATR estimator.
func (c *Config) Estimator() indicator.VolatilityEstimator {
	if c.Volatility == "synthetic" {
		return indicator.SyntheticSpread{Pct: c.SyntheticSpread}
	}
	return indicator.TrueRange{}
}

// SaveToFile writes the configuration as YAML or JSON depending on the
// extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setInt(&c.Backtest.LongWindow, "BT_LONG_WINDOW")
	setInt(&c.Backtest.ShortWindow, "BT_SHORT_WINDOW")
	setInt(&c.Backtest.ATRWindow, "BT_ATR_WINDOW")
	setFloat(&c.Backtest.RiskFrac, "BT_RISK_FRAC")
	setFloat(&c.Backtest.InitialEquity, "BT_INITIAL_EQUITY")
	setBool(&c.Backtest.UseTrailingStop, "BT_TRAILING")
	setBool(&c.Backtest.StrictWindows, "BT_STRICT")
	c.Backtest.Strategy = getEnv("BT_STRATEGY", c.Backtest.Strategy)
	c.Volatility = getEnv("BT_VOLATILITY", c.Volatility)

	if v := os.Getenv("BT_SYMBOLS"); v != "" {
		c.Symbols = ParseList(v)
	}
	c.Source.Kind = getEnv("BT_SOURCE", c.Source.Kind)
	c.Source.SQLitePath = getEnv("BARS_SQLITE_PATH", c.Source.SQLitePath)
	c.Source.CSVDir = getEnv("BARS_CSV_DIR", c.Source.CSVDir)
	c.Source.Timeframe = getEnv("BARS_TIMEFRAME", c.Source.Timeframe)

	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return
	}
	*dst = n
}

func setFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return
	}
	*dst = f
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return
	}
	*dst = b
}
