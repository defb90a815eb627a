// Package config loads SOFIE configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
	BackendNone     = "none"
)

// Synthesizer providers.
const (
	SynthCanned = "canned"
	SynthGenAI  = "genai"
)

// Love check strictness levels.
const (
	StrictnessGentle   = "gentle"
	StrictnessFirm     = "firm"
	StrictnessAbsolute = "absolute"
)

// Config holds all SOFIE configuration.
type Config struct {
	Backend            string          `yaml:"backend"`
	DatabaseURL        string          `yaml:"database_url"`
	LivenessWindowDays float64         `yaml:"liveness_window_days"`
	Memory             MemoryConfig    `yaml:"memory"`
	DefaultChamber     int             `yaml:"default_chamber"`
	PatternCacheSize   int             `yaml:"pattern_cache_size"`
	LedgerTimeout      string          `yaml:"ledger_timeout"`
	Synth              SynthConfig     `yaml:"synth"`
	VoicePatterns      bool            `yaml:"voice_patterns"`
	ContextLines       bool            `yaml:"context_lines"`
	LoveStrictness     string          `yaml:"love_strictness"`
	Identity           IdentityConfig  `yaml:"identity"`
	Log                LogConfig       `yaml:"log"`
	Telemetry          TelemetryConfig `yaml:"telemetry"`
}

// MemoryConfig bounds the memory store.
type MemoryConfig struct {
	HardCap     int `yaml:"hard_cap"`
	SoftCap     int `yaml:"soft_cap"`
	RecallLimit int `yaml:"recall_limit"`
}

// SynthConfig selects the reply synthesizer.
type SynthConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// IdentityConfig overrides parts of the built-in identity profile.
type IdentityConfig struct {
	Forbidden []string `yaml:"forbidden,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	JSON        bool   `yaml:"json"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`
}

// Dir returns the SOFIE state directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sofie")
}

// DefaultPath returns the config file path: $SOFIE_CONFIG or ~/.sofie/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("SOFIE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:            BackendSQLite,
		DatabaseURL:        filepath.Join(Dir(), "sofie.db"),
		LivenessWindowDays: 90,
		Memory: MemoryConfig{
			HardCap:     1000,
			SoftCap:     800,
			RecallLimit: 5,
		},
		DefaultChamber:   1,
		PatternCacheSize: 10000,
		LedgerTimeout:    "10s",
		Synth: SynthConfig{
			Provider: SynthCanned,
			Model:    "gemini-2.0-flash",
		},
		VoicePatterns:  true,
		ContextLines:   true,
		LoveStrictness: StrictnessFirm,
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "sofie",
		},
	}
}

// Load reads defaults, then the YAML file at path (a missing file is fine),
// then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = expandHome(cfg.DatabaseURL)
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SOFIE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("SOFIE_DB"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("SOFIE_LIVENESS_WINDOW_DAYS"); v != "" {
		days, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse SOFIE_LIVENESS_WINDOW_DAYS: %w", err)
		}
		c.LivenessWindowDays = days
	}
	if v := os.Getenv("SOFIE_DEFAULT_CHAMBER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SOFIE_DEFAULT_CHAMBER: %w", err)
		}
		c.DefaultChamber = n
	}
	if v := os.Getenv("SOFIE_SYNTH"); v != "" {
		c.Synth.Provider = v
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Synth.APIKey = key
	}
	if v := os.Getenv("SOFIE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SOFIE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	return nil
}

// GetLedgerTimeout returns the ledger timeout as a duration.
func (c *Config) GetLedgerTimeout() time.Duration {
	d, err := time.ParseDuration(c.LedgerTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendFile:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the %s backend", c.Backend)
		}
	case BackendPostgres:
		if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			return fmt.Errorf("postgres backend needs a postgres:// database_url, got %q", c.DatabaseURL)
		}
	case BackendNone:
	default:
		return fmt.Errorf("invalid backend: %s (valid: sqlite, postgres, file, none)", c.Backend)
	}

	if c.Memory.SoftCap <= 0 || c.Memory.SoftCap >= c.Memory.HardCap {
		return fmt.Errorf("memory.soft_cap must be positive and below hard_cap (%d/%d)", c.Memory.SoftCap, c.Memory.HardCap)
	}
	if c.Memory.RecallLimit <= 0 {
		return fmt.Errorf("memory.recall_limit must be positive, got %d", c.Memory.RecallLimit)
	}
	if c.DefaultChamber < 1 || c.DefaultChamber > 9 {
		return fmt.Errorf("default_chamber must be within 1-9, got %d", c.DefaultChamber)
	}
	if c.LivenessWindowDays <= 0 {
		return fmt.Errorf("liveness_window_days must be positive, got %v", c.LivenessWindowDays)
	}
	if c.PatternCacheSize <= 0 {
		return fmt.Errorf("pattern_cache_size must be positive, got %d", c.PatternCacheSize)
	}
	if c.LedgerTimeout != "" {
		if _, err := time.ParseDuration(c.LedgerTimeout); err != nil {
			return fmt.Errorf("invalid ledger_timeout: %w", err)
		}
	}

	switch c.Synth.Provider {
	case SynthCanned:
	case SynthGenAI:
		if c.Synth.APIKey == "" {
			return fmt.Errorf("genai synthesizer needs an API key (set GOOGLE_API_KEY)")
		}
	default:
		return fmt.Errorf("invalid synth provider: %s (valid: canned, genai)", c.Synth.Provider)
	}

	switch c.LoveStrictness {
	case StrictnessGentle, StrictnessFirm, StrictnessAbsolute:
	default:
		return fmt.Errorf("invalid love_strictness: %s (valid: gentle, firm, absolute)", c.LoveStrictness)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
