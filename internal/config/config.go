// Package config loads the bot configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Instrument   InstrumentConfig `yaml:"instrument"`
	Levels       LevelsConfig     `yaml:"levels"`
	Entry        EntryConfig      `yaml:"entry"`
	Exits        ExitsConfig      `yaml:"exits"`
	Window       WindowConfig     `yaml:"window"`
	Limits       LimitsConfig     `yaml:"limits"`
	Cooldown     CooldownConfig   `yaml:"cooldown"`
	BarsRequired int              `yaml:"bars_required"`
	Feed         struct {
		URL string `yaml:"url"`
	} `yaml:"feed"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
}

type InstrumentConfig struct {
	Symbol     string  `yaml:"symbol"`
	TickSize   float64 `yaml:"tick_size"`
	PointValue float64 `yaml:"point_value"` // currency per 1.0 of price per contract
}

type LevelsConfig struct {
	UseSupport           bool `yaml:"use_support"`
	UseResistance        bool `yaml:"use_resistance"`
	UsePivotBull         bool `yaml:"use_pivot_bull"`
	UsePivotBear         bool `yaml:"use_pivot_bear"`
	UseStrengthConfirmed bool `yaml:"use_strength_confirmed"`
	UseWeaknessConfirmed bool `yaml:"use_weakness_confirmed"`
	UseGL                bool `yaml:"use_gl"`

	KeywordSupport           string `yaml:"keyword_support"`
	KeywordResistance        string `yaml:"keyword_resistance"`
	KeywordPivotBull         string `yaml:"keyword_pivot_bull"`
	KeywordPivotBear         string `yaml:"keyword_pivot_bear"`
	KeywordStrengthConfirmed string `yaml:"keyword_strength_confirmed"`
	KeywordWeaknessConfirmed string `yaml:"keyword_weakness_confirmed"`
	KeywordGL                string `yaml:"keyword_gl"`

	// SuffixMarkers cut the tag at the first '|' when any of them is present.
	SuffixMarkers []string `yaml:"suffix_markers"`
	LabelPrefix   string   `yaml:"label_prefix"`
}

type EntryConfig struct {
	PriceProximityTicks int    `yaml:"price_proximity_ticks"`
	TradeOnCrossover    bool   `yaml:"trade_on_crossover"`
	TradeOnTouch        bool   `yaml:"trade_on_touch"`
	UseLabelFilter      bool   `yaml:"use_label_filter"`
	RequireLabel        bool   `yaml:"require_label"`
	LabelToken          string `yaml:"label_token"`
}

type ExitsConfig struct {
	Contracts                 int `yaml:"contracts"`
	Contract1InitialStopTicks int `yaml:"contract1_initial_stop_ticks"`
	Contract2InitialStopTicks int `yaml:"contract2_initial_stop_ticks"`
	Contract1ScalpTicks       int `yaml:"contract1_scalp_ticks"`
	Contract1BreakevenTicks   int `yaml:"contract1_breakeven_ticks"`
	Contract2TargetTicks      int `yaml:"contract2_target_ticks"`
	Contract2BreakevenTicks   int `yaml:"contract2_breakeven_ticks"`
	Contract2TrailTicks       int `yaml:"contract2_trail_ticks"`
	MaxExitRetries            int `yaml:"max_exit_retries"`
}

type WindowConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Timezone    string `yaml:"timezone"`
	StartHour   int    `yaml:"start_hour"`
	StartMinute int    `yaml:"start_minute"`
	EndHour     int    `yaml:"end_hour"`
	EndMinute   int    `yaml:"end_minute"`
}

type LimitsConfig struct {
	EnableDailyLossLimit   bool    `yaml:"enable_daily_loss_limit"`
	DailyLossLimit         float64 `yaml:"daily_loss_limit"`
	EnableDailyTargetLimit bool    `yaml:"enable_daily_target_limit"`
	DailyTargetLimit       float64 `yaml:"daily_target_limit"`
}

type CooldownConfig struct {
	Enabled bool `yaml:"enabled"`
	Minutes int  `yaml:"minutes"`
}

// Default returns the stock strategy parameters.
func Default() *Config {
	cfg := &Config{
		Instrument: InstrumentConfig{
			Symbol:     "ES",
			TickSize:   0.25,
			PointValue: 50,
		},
		Levels: LevelsConfig{
			UseSupport:               true,
			UseResistance:            true,
			UsePivotBull:             true,
			UsePivotBear:             true,
			UseStrengthConfirmed:     false,
			UseWeaknessConfirmed:     false,
			UseGL:                    true,
			KeywordSupport:           "Support",
			KeywordResistance:        "Resistance",
			KeywordPivotBull:         "Pivot Bull",
			KeywordPivotBear:         "Pivot Bear",
			KeywordStrengthConfirmed: "Strength Confirmed",
			KeywordWeaknessConfirmed: "Weakness Confirmed",
			KeywordGL:                "GL",
			SuffixMarkers:            []string{"|PTZDPHLine", "|GOLDPTZDPHLine"},
			LabelPrefix:              "LBL=",
		},
		Entry: EntryConfig{
			PriceProximityTicks: 2,
			TradeOnCrossover:    true,
			TradeOnTouch:        true,
			LabelToken:          "lbl",
		},
		Exits: ExitsConfig{
			Contracts:                 2,
			Contract1InitialStopTicks: 22,
			Contract2InitialStopTicks: 22,
			Contract1ScalpTicks:       7,
			Contract1BreakevenTicks:   4,
			Contract2TargetTicks:      80,
			Contract2BreakevenTicks:   4,
			Contract2TrailTicks:       7,
			MaxExitRetries:            1,
		},
		Window: WindowConfig{
			Enabled:     true,
			Timezone:    "America/New_York",
			StartHour:   9,
			StartMinute: 45,
			EndHour:     15,
			EndMinute:   45,
		},
		Limits: LimitsConfig{
			EnableDailyLossLimit:   true,
			DailyLossLimit:         500,
			EnableDailyTargetLimit: true,
			DailyTargetLimit:       500,
		},
		Cooldown: CooldownConfig{
			Enabled: true,
			Minutes: 5,
		},
		BarsRequired: 20,
	}
	cfg.Storage.Path = "bot.db"
	cfg.Server.Port = 8080
	cfg.Logging.Level = "info"
	cfg.Logging.Encoding = "json"
	return cfg
}

// LoadConfig reads the YAML file at path on top of Default, then applies
// environment overrides. A .env file next to the working directory is loaded
// first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate enforces the parameter ranges of the strategy.
func (c *Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Instrument.TickSize > 0, "instrument.tick_size must be > 0"},
		{c.Instrument.PointValue > 0, "instrument.point_value must be > 0"},
		{c.Entry.PriceProximityTicks >= 0, "entry.price_proximity_ticks must be >= 0"},
		{c.Exits.Contracts == 1 || c.Exits.Contracts == 2, "exits.contracts must be 1 or 2"},
		{c.Exits.Contract1InitialStopTicks >= 1, "exits.contract1_initial_stop_ticks must be >= 1"},
		{c.Exits.Contract2InitialStopTicks >= 1, "exits.contract2_initial_stop_ticks must be >= 1"},
		{c.Exits.Contract1ScalpTicks >= 1, "exits.contract1_scalp_ticks must be >= 1"},
		{c.Exits.Contract1BreakevenTicks >= 1, "exits.contract1_breakeven_ticks must be >= 1"},
		{c.Exits.Contract2TargetTicks >= 1, "exits.contract2_target_ticks must be >= 1"},
		{c.Exits.Contract2BreakevenTicks >= 1, "exits.contract2_breakeven_ticks must be >= 1"},
		{c.Exits.Contract2TrailTicks >= 1, "exits.contract2_trail_ticks must be >= 1"},
		{c.Exits.MaxExitRetries >= 0, "exits.max_exit_retries must be >= 0"},
		{inRange(c.Window.StartHour, 0, 23), "window.start_hour must be 0..23"},
		{inRange(c.Window.EndHour, 0, 23), "window.end_hour must be 0..23"},
		{inRange(c.Window.StartMinute, 0, 59), "window.start_minute must be 0..59"},
		{inRange(c.Window.EndMinute, 0, 59), "window.end_minute must be 0..59"},
		{!c.Limits.EnableDailyLossLimit || c.Limits.DailyLossLimit >= 1, "limits.daily_loss_limit must be >= 1"},
		{!c.Limits.EnableDailyTargetLimit || c.Limits.DailyTargetLimit >= 1, "limits.daily_target_limit must be >= 1"},
		{!c.Cooldown.Enabled || inRange(c.Cooldown.Minutes, 1, 1440), "cooldown.minutes must be 1..1440"},
		{c.BarsRequired >= 0, "bars_required must be >= 0"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, chk.msg)
		}
	}
	return nil
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

// TickSize returns the instrument tick size as a decimal.
func (c *Config) TickSize() decimal.Decimal {
	return decimal.NewFromFloat(c.Instrument.TickSize)
}

// PointValue returns the currency value of one full price point per contract.
func (c *Config) PointValue() decimal.Decimal {
	return decimal.NewFromFloat(c.Instrument.PointValue)
}

// CooldownWindow returns the configured level cooldown, zero when disabled.
func (c *Config) CooldownWindow() time.Duration {
	if !c.Cooldown.Enabled {
		return 0
	}
	return time.Duration(c.Cooldown.Minutes) * time.Minute
}
