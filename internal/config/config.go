// Package config loads runtime configuration via viper. Every key has a
// default suitable for local play; the environment overrides with the
// CORPGAME_ prefix (CORPGAME_HTTP_ADDR, CORPGAME_DATABASE_URL, ...), and an
// optional YAML file overrides both.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`
	LogLevel    string `mapstructure:"log_level"`

	// StoreTimeout bounds each persistence step on the turn and governance
	// paths.
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	TickInterval    time.Duration `mapstructure:"tick_interval"`
	QuarterDuration time.Duration `mapstructure:"quarter_duration"`
	RunOnce         bool          `mapstructure:"run_once"`

	VotingPeriod            time.Duration `mapstructure:"voting_period"`
	SpecialDividendCooldown time.Duration `mapstructure:"special_dividend_cooldown"`
	MaxBoardSize            int           `mapstructure:"max_board_size"`

	ActionPointsPerTurn int64 `mapstructure:"action_points_per_turn"`
	CEOActionBonus      int64 `mapstructure:"ceo_action_bonus"`
	ActionPointsCap     int64 `mapstructure:"action_points_cap"`
	TurnFanOut          int   `mapstructure:"turn_fan_out"`
	GameHoursPerQuarter int64 `mapstructure:"game_hours_per_quarter"`

	PriceFloor       float64       `mapstructure:"price_floor"`
	PriceCeiling     float64       `mapstructure:"price_ceiling"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	TradeWindow      time.Duration `mapstructure:"trade_window"`
	TradeMaxSamples  int           `mapstructure:"trade_max_samples"`

	BookWeight       float64 `mapstructure:"book_weight"`
	TradeWeight      float64 `mapstructure:"trade_weight"`
	UnitAssetCredits int64   `mapstructure:"unit_asset_credits"`
}

// Load reads configuration. path may be empty; when set it names a YAML file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORPGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 20)
	v.SetDefault("log_level", "info")
	v.SetDefault("store_timeout", 10*time.Second)

	v.SetDefault("tick_interval", time.Minute)
	v.SetDefault("quarter_duration", 24*time.Hour)
	v.SetDefault("run_once", false)

	v.SetDefault("voting_period", 48*time.Hour)
	v.SetDefault("special_dividend_cooldown", 96*time.Hour)
	v.SetDefault("max_board_size", 15)

	v.SetDefault("action_points_per_turn", 3)
	v.SetDefault("ceo_action_bonus", 2)
	v.SetDefault("action_points_cap", 30)
	v.SetDefault("turn_fan_out", 8)
	v.SetDefault("game_hours_per_quarter", 96)

	v.SetDefault("price_floor", 0.5)
	v.SetDefault("price_ceiling", 2.0)
	v.SetDefault("history_retention", 7*24*time.Hour)
	v.SetDefault("trade_window", 24*time.Hour)
	v.SetDefault("trade_max_samples", 32)

	v.SetDefault("book_weight", 0.8)
	v.SetDefault("trade_weight", 0.2)
	v.SetDefault("unit_asset_credits", 50_000)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PriceFloor <= 0 || c.PriceCeiling < c.PriceFloor {
		return fmt.Errorf("price bounds invalid: floor=%v ceiling=%v", c.PriceFloor, c.PriceCeiling)
	}
	if w := c.BookWeight + c.TradeWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("valuation weights must sum to 1, got %v", w)
	}
	if c.QuarterDuration <= 0 {
		return fmt.Errorf("quarter_duration must be > 0")
	}
	if c.TurnFanOut < 1 {
		return fmt.Errorf("turn_fan_out must be >= 1")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store_timeout must be > 0")
	}
	return nil
}
