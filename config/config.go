package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/execsim/pkg/logger"
	"github.com/rustyeddy/execsim/risk"
	"github.com/rustyeddy/execsim/slippage"
)

var validate = validator.New()

// Config represents the complete simulator configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Costs    slippage.Model `json:"costs" yaml:"costs"`
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Filter   FilterConfig   `json:"filter" yaml:"filter"`
	Exposure ExposureConfig `json:"exposure" yaml:"exposure"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	State    StateConfig    `json:"state" yaml:"state"`
	Log      logger.Config  `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID          string  `json:"id" yaml:"id" default:"SIM-001" validate:"required"`
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash" default:"100000" validate:"gt=0"`
}

// BrokerConfig tunes the simulated broker.
type BrokerConfig struct {
	FillDelay      time.Duration `json:"fill_delay" yaml:"fill_delay" default:"2s" validate:"gte=0"`
	RejectRate     float64       `json:"reject_rate" yaml:"reject_rate" default:"0.05" validate:"gte=0,lte=1"`
	MaxSlippageBp  float64       `json:"max_slippage_bp" yaml:"max_slippage_bp" default:"2" validate:"gte=0"`
	ValuationNoise float64       `json:"valuation_noise" yaml:"valuation_noise" default:"0.005" validate:"gte=0,lt=1"`
	Seed           int64         `json:"seed" yaml:"seed"` // 0 seeds from the wall clock
}

// FilterConfig contains the live signal admission parameters
type FilterConfig struct {
	MinConfidence    float64       `json:"min_confidence" yaml:"min_confidence" default:"0.6" validate:"gte=0,lte=1"`
	MinEdgeBp        float64       `json:"min_edge_bp" yaml:"min_edge_bp" default:"3" validate:"gte=0"`
	Cooldown         time.Duration `json:"cooldown" yaml:"cooldown" default:"5m" validate:"gte=0"`
	RiskPct          float64       `json:"risk_pct" yaml:"risk_pct" default:"0.01" validate:"gt=0,lte=1"`
	MaxPositionPct   float64       `json:"max_position_pct" yaml:"max_position_pct" default:"0.1" validate:"gt=0,lte=1"`
	AllowShort       bool          `json:"allow_short" yaml:"allow_short"`
	PollAttempts     int           `json:"poll_attempts" yaml:"poll_attempts" default:"50" validate:"gt=0"`
	PollInterval     time.Duration `json:"poll_interval" yaml:"poll_interval" default:"50ms" validate:"gt=0"`
	SnapshotInterval time.Duration `json:"snapshot_interval" yaml:"snapshot_interval" default:"1s" validate:"gte=0"`
	PrimarySymbol    string        `json:"primary_symbol" yaml:"primary_symbol"` // empty trades every symbol
}

type ExposureConfig struct {
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Limits  risk.Limits `json:"limits" yaml:"limits"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type" default:"jsonl" validate:"oneof=jsonl csv sqlite"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty" default:"data/trades.jsonl"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty" default:"data/equity.jsonl"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty" default:"data/journal.db"`
}

// StateConfig selects where the account is carried between sessions.
type StateConfig struct {
	Backend          string `json:"backend" yaml:"backend" default:"file" validate:"oneof=file pebble"`
	Path             string `json:"path" yaml:"path" default:"data/account_state.json" validate:"required"`
	RestorePositions bool   `json:"restore_positions" yaml:"restore_positions"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable with a malformed default tag.
		panic(err)
	}
	return cfg
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON).
// Keys missing from the file keep their defaults; explicit zeros are kept.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv loads path (or the defaults when path is empty), then applies
// a .env file and EXECSIM_* environment overrides.
// Priority: ENV > .env file > config file > defaults
func LoadWithEnv(path, envPath string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"EXECSIM_ACCOUNT_ID":     &c.Account.ID,
		"EXECSIM_JOURNAL_TYPE":   &c.Journal.Type,
		"EXECSIM_TRADES_FILE":    &c.Journal.TradesFile,
		"EXECSIM_EQUITY_FILE":    &c.Journal.EquityFile,
		"EXECSIM_DB_PATH":        &c.Journal.DBPath,
		"EXECSIM_STATE_BACKEND":  &c.State.Backend,
		"EXECSIM_STATE_PATH":     &c.State.Path,
		"EXECSIM_LOG_LEVEL":      &c.Log.Level,
		"EXECSIM_LOG_FORMAT":     &c.Log.Format,
		"EXECSIM_METRICS_ADDR":   &c.Metrics.Addr,
		"EXECSIM_PRIMARY_SYMBOL": &c.Filter.PrimarySymbol,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v := os.Getenv("EXECSIM_INITIAL_CASH"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EXECSIM_INITIAL_CASH: %w", err)
		}
		c.Account.InitialCash = f
	}
	if v := os.Getenv("EXECSIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("EXECSIM_SEED: %w", err)
		}
		c.Broker.Seed = n
	}
	return nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, else JSON)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
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

// Validate checks struct tags, then the cross-field journal rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	switch c.Journal.Type {
	case "jsonl", "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for %s type", c.Journal.Type)
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
}
