package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"goalpace/internal/calendar"
	"goalpace/internal/domain"
	"goalpace/internal/goals"
)

const (
	FileName       = "goalpace.yml"
	LedgerSQLite   = "sqlite"
	LedgerRedis    = "redis"
	defaultAddr    = "127.0.0.1:8080"
	defaultBaseAPI = "/v0"
)

// Config models goalpace.yml.
type Config struct {
	Timezone string `yaml:"timezone"`
	Pace     struct {
		CloseOnEndDay *bool `yaml:"close_on_end_day"`
	} `yaml:"pace"`
	Goals   []goals.Definition `yaml:"goals"`
	Metrics map[string]string  `yaml:"metrics"`
	Ledger  LedgerConfig       `yaml:"ledger"`
	Notify  struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notify"`
	Server ServerConfig `yaml:"server"`
	Log    struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
}

// CloseOnEndDay reports whether pacing treats the last day of the week as closed.
func (c *Config) CloseOnEndDay() bool {
	return c.Pace.CloseOnEndDay == nil || *c.Pace.CloseOnEndDay
}

// Directions returns the configured metric directions.
func (c *Config) Directions() (map[string]domain.Direction, error) {
	out := make(map[string]domain.Direction, len(c.Metrics))
	for key, raw := range c.Metrics {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, domain.ConfigurationError{Field: "metrics", Reason: "empty metric key"}
		}
		dir, err := domain.ParseDirection(raw)
		if err != nil {
			return nil, domain.ConfigurationError{Field: "metrics." + key, Reason: "invalid direction", Err: err}
		}
		out[key] = dir
	}
	return out, nil
}

// Validate ensures the config can start an engine.
func (c *Config) Validate() error {
	if _, err := calendar.LoadZone(c.Timezone); err != nil {
		return err
	}
	if _, err := goals.New(c.Goals); err != nil {
		return err
	}
	if _, err := c.Directions(); err != nil {
		return err
	}
	switch c.Ledger.Backend {
	case "", LedgerSQLite:
	case LedgerRedis:
		if strings.TrimSpace(c.Ledger.Redis.Addr) == "" {
			return domain.ConfigurationError{Field: "ledger.redis.addr", Reason: "is required for the redis backend"}
		}
	default:
		return domain.ConfigurationError{Field: "ledger.backend", Reason: fmt.Sprintf("must be %s or %s, got %q", LedgerSQLite, LedgerRedis, c.Ledger.Backend)}
	}
	for i, hook := range c.Notify.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return domain.ConfigurationError{Field: fmt.Sprintf("notify.webhooks[%d].url", i), Reason: "is required"}
		}
		if hook.TimeoutSeconds < 0 {
			return domain.ConfigurationError{Field: fmt.Sprintf("notify.webhooks[%d].timeout_seconds", i), Reason: "must be >= 0"}
		}
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return domain.ConfigurationError{Field: "server.base_path", Reason: "must start with /"}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerSQLite
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = defaultBaseAPI
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML for a timezone.
func GenerateDefault(timezone string) string {
	return fmt.Sprintf(defaultTemplate, timezone)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("UTC"))).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.ConfigurationError{Field: "yaml", Reason: "invalid config yaml", Err: err}
	}
	if len(cfg.Goals) == 0 {
		cfg.Goals = goals.Default()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `timezone: %s

pace:
  # Treat the last day of the week as closed for pacing.
  close_on_end_day: true

goals:
  - category: exercise
    weekly_target: 4
    members: [run, lift]
  - category: reading
    weekly_target: 5
  - category: meditation
    weekly_target: 7
  - category: journaling
    weekly_target: 3
  - category: routines
    weekly_target: 7

metrics:
  run_distance: maximize
  lift_volume: maximize
  5k_time: minimize

ledger:
  backend: sqlite

notify:
  webhooks: []

server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
`
