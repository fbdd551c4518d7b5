package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/level_cross_trader/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.25", cfg.TickSize().String())
	assert.Equal(t, "50", cfg.PointValue().String())
	assert.Equal(t, 5*time.Minute, cfg.CooldownWindow())
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
instrument:
  symbol: NQ
  tick_size: 0.25
  point_value: 20
exits:
  contracts: 1
cooldown:
  enabled: false
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "NQ", cfg.Instrument.Symbol)
	assert.Equal(t, 1, cfg.Exits.Contracts)
	assert.Equal(t, 22, cfg.Exits.Contract1InitialStopTicks, "unset keys keep defaults")
	assert.Equal(t, time.Duration(0), cfg.CooldownWindow())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("FEED_URL", "ws://feed/bars")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ws://feed/bars", cfg.Feed.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "instrument: ["))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero tick size", func(c *config.Config) { c.Instrument.TickSize = 0 }},
		{"three contracts", func(c *config.Config) { c.Exits.Contracts = 3 }},
		{"zero stop", func(c *config.Config) { c.Exits.Contract1InitialStopTicks = 0 }},
		{"zero trail", func(c *config.Config) { c.Exits.Contract2TrailTicks = 0 }},
		{"negative proximity", func(c *config.Config) { c.Entry.PriceProximityTicks = -1 }},
		{"hour out of range", func(c *config.Config) { c.Window.EndHour = 24 }},
		{"minute out of range", func(c *config.Config) { c.Window.StartMinute = 60 }},
		{"loss limit below one", func(c *config.Config) { c.Limits.DailyLossLimit = 0.5 }},
		{"cooldown too long", func(c *config.Config) { c.Cooldown.Minutes = 1441 }},
		{"negative warm-up", func(c *config.Config) { c.BarsRequired = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}

	t.Run("disabled limit is not checked", func(t *testing.T) {
		cfg := config.Default()
		cfg.Limits.EnableDailyLossLimit = false
		cfg.Limits.DailyLossLimit = 0
		assert.NoError(t, cfg.Validate())
	})
}
