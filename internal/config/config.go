package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/msomdec/locomotiva-cache/internal/policy"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LOCOMOTIVA_"

// Config holds the cache daemon configuration.
type Config struct {
	DatabasePath string       `yaml:"database_path" env:"DATABASE_PATH"`
	AdminAddr    string       `yaml:"admin_addr" env:"ADMIN_ADDR"`
	Admin        AdminConfig  `yaml:"admin" envPrefix:"ADMIN_"`
	Log          LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Policy       PolicyConfig `yaml:"policy"`
}

// AdminConfig limits how often a client may call the purge routes. A zero
// burst disables the limit; otherwise the rate must be positive so buckets
// refill.
type AdminConfig struct {
	PurgeRate  float64 `yaml:"purge_rate" env:"PURGE_RATE"` // tokens per second
	PurgeBurst int     `yaml:"purge_burst" env:"PURGE_BURST"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text, json
	// JSONMirror also writes JSON records to stderr.
	JSONMirror bool `yaml:"json_mirror" env:"JSON_MIRROR"`
}

// PolicyConfig carries the freshness and suspect-data parameters.
type PolicyConfig struct {
	CityListTTL       time.Duration `yaml:"city_list_ttl" env:"CITY_LIST_TTL"`
	GeometryTTL       time.Duration `yaml:"geometry_ttl" env:"GEOMETRY_TTL"`
	SuspectSuffix     string        `yaml:"suspect_suffix" env:"SUSPECT_SUFFIX"`
	SuspectFraction   float64       `yaml:"suspect_fraction" env:"SUSPECT_FRACTION"`
	SuspectMaxEntries int           `yaml:"suspect_max_entries" env:"SUSPECT_MAX_ENTRIES"`
	PurgeStale        bool          `yaml:"purge_stale" env:"PURGE_STALE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DatabasePath: "data/locomotiva-cache.db",
		AdminAddr:    ":8081",
		Admin: AdminConfig{
			PurgeRate:  0.2,
			PurgeBurst: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Policy: PolicyConfig{
			CityListTTL:       policy.DefaultCityListTTL,
			GeometryTTL:       policy.DefaultGeometryTTL,
			SuspectSuffix:     policy.DefaultSuspectSuffix,
			SuspectFraction:   policy.DefaultSuspectFraction,
			SuspectMaxEntries: policy.DefaultSuspectMaxEntries,
		},
	}
}

// Load builds the configuration in order: defaults, the YAML file at path
// (skipped when path is empty or the file does not exist), LOCOMOTIVA_*
// environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database_path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}
	if c.Admin.PurgeRate < 0 || c.Admin.PurgeBurst < 0 {
		return fmt.Errorf("admin purge limits must not be negative")
	}
	if c.Admin.PurgeBurst > 0 && c.Admin.PurgeRate == 0 {
		return fmt.Errorf("admin.purge_rate must be positive when admin.purge_burst is set")
	}
	if c.Policy.CityListTTL <= 0 {
		return fmt.Errorf("policy.city_list_ttl must be positive")
	}
	if c.Policy.GeometryTTL <= 0 {
		return fmt.Errorf("policy.geometry_ttl must be positive")
	}
	if err := c.Policy.skew().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

func (p PolicyConfig) skew() policy.SkewHeuristic {
	return policy.SkewHeuristic{
		Suffix:     p.SuspectSuffix,
		Fraction:   p.SuspectFraction,
		MaxEntries: p.SuspectMaxEntries,
	}
}

// Build returns the cache policy described by the configuration.
func (p PolicyConfig) Build() policy.Policy {
	pol := policy.New(p.CityListTTL, p.GeometryTTL, p.skew())
	pol.PurgeStale = p.PurgeStale
	return pol
}
