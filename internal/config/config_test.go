package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipeless/payment-relay/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAY_TERMINAL_URL", "https://gateway.example.com/scr")
	t.Setenv("RELAY_TERMINAL_USER", "vend")
	t.Setenv("RELAY_TERMINAL_KEY", "secret")
}

func TestLoad_DefaultsWithEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "https://gateway.example.com/scr", cfg.Terminal.URL)
	assert.Equal(t, "NZD", cfg.Terminal.Currency)
	assert.Equal(t, 1, cfg.Terminal.StationID)
	assert.Equal(t, "Vend", cfg.Terminal.PosName)
	assert.Equal(t, "1", cfg.Terminal.VendorID)
	assert.Equal(t, 15*time.Second, cfg.Terminal.Timeout)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Store.RecordTTL)
	assert.Equal(t, domain.DuplicateRelay, cfg.DuplicatePolicy())
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
http_addr: ":8181"
terminal:
  url: "https://file.example.com/scr"
  user: "file-user"
  key: "file-key"
  currency: "AUD"
  station_id: 3
  timeout: 5s
store:
  backend: badger
  badger_path: /var/lib/relay
  record_ttl: 30m
relay:
  duplicate_policy: drop
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("RELAY_TERMINAL_STATION_ID", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.HTTPAddr)
	assert.Equal(t, "file-user", cfg.Terminal.User)
	assert.Equal(t, "AUD", cfg.Terminal.Currency)
	assert.Equal(t, 7, cfg.Terminal.StationID)
	assert.Equal(t, 5*time.Second, cfg.Terminal.Timeout)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/relay", cfg.Store.BadgerPath)
	assert.Equal(t, 30*time.Minute, cfg.Store.RecordTTL)
	assert.Equal(t, domain.DuplicateDrop, cfg.DuplicatePolicy())
}

func TestLoad_MissingFile(t *testing.T) {
	setRequiredEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Terminal: TerminalConfig{URL: "https://g", User: "u", Key: "k", StationID: 1, Timeout: time.Second},
			Store:    StoreConfig{Backend: BackendMemory, RecordTTL: time.Hour, SweepInterval: time.Minute},
			Relay:    RelayConfig{DuplicatePolicy: "relay"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "Valid", mutate: func(c *Config) {}},
		{name: "Missing url", mutate: func(c *Config) { c.Terminal.URL = "" }, errMsg: "terminal.url is required"},
		{name: "Missing key", mutate: func(c *Config) { c.Terminal.Key = "" }, errMsg: "terminal.user and terminal.key"},
		{name: "Unknown backend", mutate: func(c *Config) { c.Store.Backend = "dynamo" }, errMsg: "unsupported store.backend"},
		{name: "Postgres without dsn", mutate: func(c *Config) { c.Store.Backend = BackendPostgres }, errMsg: "store.postgres_dsn is required"},
		{name: "Zero ttl", mutate: func(c *Config) { c.Store.RecordTTL = 0 }, errMsg: "store.record_ttl must be positive"},
		{name: "Unknown policy", mutate: func(c *Config) { c.Relay.DuplicatePolicy = "maybe" }, errMsg: "relay.duplicate_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
