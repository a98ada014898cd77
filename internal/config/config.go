package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// #region config-types

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Deliberation DeliberationConfig `yaml:"deliberation"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig configures the audit store. An empty path disables persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CapabilitiesConfig locates the external search and generation services.
type CapabilitiesConfig struct {
	SearchURL   string        `yaml:"search_url"`
	GenerateURL string        `yaml:"generate_url"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	RetryCount  int           `yaml:"retry_count"`
	RetryBase   time.Duration `yaml:"retry_base"`
}

// DeliberationConfig holds the debate-loop tuning surface.
type DeliberationConfig struct {
	MaxRounds       int           `yaml:"max_rounds"`
	AcceptThreshold float64       `yaml:"accept_threshold"`
	RejectThreshold float64       `yaml:"reject_threshold"`
	StagnationDelta float64       `yaml:"stagnation_delta"`
	TurnBudget      time.Duration `yaml:"turn_budget"`
	RetrievalK      int           `yaml:"retrieval_k"`
	ReframeCount    int           `yaml:"reframe_count"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
}

// #endregion config-types

// #region defaults

// Default returns the configuration used when no file or overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8089",
		},
		Store: StoreConfig{
			Path: "oliver_audit.db",
		},
		Capabilities: CapabilitiesConfig{
			SearchURL:   "http://localhost:8001",
			GenerateURL: "http://localhost:8002",
			CallTimeout: 30 * time.Second,
			RetryCount:  2,
			RetryBase:   500 * time.Millisecond,
		},
		Deliberation: DeliberationConfig{
			MaxRounds:       3,
			AcceptThreshold: 0.7,
			RejectThreshold: 0.3,
			StagnationDelta: 0.05,
			TurnBudget:      2 * time.Minute,
			RetrievalK:      10,
			ReframeCount:    3,
			SessionTTL:      30 * time.Minute,
		},
	}
}

// #endregion defaults

// #region load

// Load reads the yaml config at path (optional) and applies OLIVER_* env
// overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OLIVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OLIVER_DB"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OLIVER_SEARCH_URL"); v != "" {
		cfg.Capabilities.SearchURL = v
	}
	if v := os.Getenv("OLIVER_GENERATE_URL"); v != "" {
		cfg.Capabilities.GenerateURL = v
	}
	if v := os.Getenv("OLIVER_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deliberation.MaxRounds = n
		}
	}
	if v := os.Getenv("OLIVER_RETRIEVAL_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Deliberation.RetrievalK = n
		}
	}
}

// #endregion load

// #region validate

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Deliberation.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be >= 1, got %d", c.Deliberation.MaxRounds)
	}
	if c.Deliberation.AcceptThreshold <= c.Deliberation.RejectThreshold {
		return fmt.Errorf("accept_threshold (%.2f) must exceed reject_threshold (%.2f)",
			c.Deliberation.AcceptThreshold, c.Deliberation.RejectThreshold)
	}
	if c.Deliberation.AcceptThreshold > 1 || c.Deliberation.RejectThreshold < 0 {
		return fmt.Errorf("thresholds must lie in [0,1]")
	}
	if c.Deliberation.StagnationDelta < 0 {
		return fmt.Errorf("stagnation_delta must be >= 0, got %.3f", c.Deliberation.StagnationDelta)
	}
	if c.Deliberation.RetrievalK < 1 {
		return fmt.Errorf("retrieval_k must be >= 1, got %d", c.Deliberation.RetrievalK)
	}
	if c.Capabilities.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0, got %d", c.Capabilities.RetryCount)
	}
	return nil
}

// #endregion validate
