package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/swipeless/payment-relay/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. RELAY_TERMINAL_URL
const EnvPrefix = "RELAY"

// Store backends
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is resolved once at startup
type Config struct {
	HTTPAddr       string   `mapstructure:"http_addr"`
	GRPCAddr       string   `mapstructure:"grpc_addr"`
	APIToken       string   `mapstructure:"api_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Log      LogConfig      `mapstructure:"log"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Store    StoreConfig    `mapstructure:"store"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TerminalConfig struct {
	URL       string        `mapstructure:"url"`
	User      string        `mapstructure:"user"`
	Key       string        `mapstructure:"key"`
	Currency  string        `mapstructure:"currency"`
	StationID int           `mapstructure:"station_id"`
	PosName   string        `mapstructure:"pos_name"`
	VendorID  string        `mapstructure:"vendor_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	BadgerPath    string        `mapstructure:"badger_path"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	RecordTTL     time.Duration `mapstructure:"record_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RelayConfig struct {
	DuplicatePolicy string        `mapstructure:"duplicate_policy"`
	PushTimeout     time.Duration `mapstructure:"push_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("api_token", "")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("terminal.url", "")
	v.SetDefault("terminal.user", "")
	v.SetDefault("terminal.key", "")
	v.SetDefault("terminal.currency", "NZD")
	v.SetDefault("terminal.station_id", 1)
	v.SetDefault("terminal.pos_name", "Vend")
	v.SetDefault("terminal.vendor_id", "1")
	v.SetDefault("terminal.timeout", 15*time.Second)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.badger_path", "data/badger")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.record_ttl", 2*time.Hour)
	v.SetDefault("store.sweep_interval", 10*time.Minute)

	v.SetDefault("relay.duplicate_policy", string(domain.DuplicateRelay))
	v.SetDefault("relay.push_timeout", 5*time.Second)
}

// Load reads defaults, then the optional file at path, then RELAY_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing or inconsistent setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Terminal.URL == "" {
		errs = append(errs, errors.New("terminal.url is required"))
	}
	if c.Terminal.User == "" || c.Terminal.Key == "" {
		errs = append(errs, errors.New("terminal.user and terminal.key are required"))
	}
	if c.Terminal.StationID <= 0 {
		errs = append(errs, errors.New("terminal.station_id must be positive"))
	}
	if c.Terminal.Timeout <= 0 {
		errs = append(errs, errors.New("terminal.timeout must be positive"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Store.BadgerPath == "" {
			errs = append(errs, errors.New("store.badger_path is required for the badger backend"))
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store.backend %q", c.Store.Backend))
	}
	if c.Store.RecordTTL <= 0 {
		errs = append(errs, errors.New("store.record_ttl must be positive"))
	}
	if c.Store.SweepInterval <= 0 {
		errs = append(errs, errors.New("store.sweep_interval must be positive"))
	}

	if _, err := domain.ParseDuplicatePolicy(c.Relay.DuplicatePolicy); err != nil {
		errs = append(errs, fmt.Errorf("relay.duplicate_policy: %w", err))
	}

	return errors.Join(errs...)
}

// DuplicatePolicy returns the parsed relay.duplicate_policy
func (c *Config) DuplicatePolicy() domain.DuplicatePolicy {
	p, _ := domain.ParseDuplicatePolicy(c.Relay.DuplicatePolicy)
	return p
}
