package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"ibkr-data/internal/barsize"
	"ibkr-data/internal/fetch"
)

// Config holds application configuration, merged from defaults, an optional
// YAML file and IBKR_-prefixed environment variables.
type Config struct {
	Host                  string         `mapstructure:"host" validate:"required"`
	Port                  int            `mapstructure:"port" validate:"gt=0,lte=65535"`
	ClientID              int            `mapstructure:"client_id" validate:"gte=0"`
	UniverseFile          string         `mapstructure:"universe_file" validate:"required"`
	DataDir               string         `mapstructure:"data_dir" validate:"required"`
	SaveFormat            string         `mapstructure:"save_format" validate:"oneof=csv json parquet sqlite"`
	LogLevel              string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile               string         `mapstructure:"log_file"`
	StartDate             string         `mapstructure:"start_date" validate:"required"`
	BarSize               string         `mapstructure:"bar_size" validate:"required"`
	PacingSeconds         int            `mapstructure:"pacing_seconds" validate:"gte=0"`
	SettleSeconds         int            `mapstructure:"settle_seconds" validate:"gte=0"`
	DisconnectWaitSeconds int            `mapstructure:"disconnect_wait_seconds" validate:"gte=0"`
	DialTimeoutSeconds    int            `mapstructure:"dial_timeout_seconds" validate:"gt=0"`
	TimeoutSeconds        map[string]int `mapstructure:"timeout_seconds"` // per bar-size category overrides
}

// LoadConfig reads configuration. path selects an explicit YAML file; when
// empty, ./config.yaml is used if present and defaults otherwise.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IBKR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config failed: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 7496)
	v.SetDefault("client_id", 0)
	v.SetDefault("universe_file", "index/nasdaq100.txt")
	v.SetDefault("data_dir", "data")
	v.SetDefault("save_format", "csv")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("start_date", "2008-01-01")
	v.SetDefault("bar_size", "1 day")
	v.SetDefault("pacing_seconds", 3)
	v.SetDefault("settle_seconds", 3)
	v.SetDefault("disconnect_wait_seconds", 2)
	v.SetDefault("dial_timeout_seconds", 10)
}

func validateConfig(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name := range cfg.TimeoutSeconds {
		if _, ok := barsize.ParseCategory(name); !ok {
			return fmt.Errorf("invalid config: unknown timeout category %q", name)
		}
	}
	return nil
}

// Pacing is the sleep between two symbols of a batch.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.PacingSeconds) * time.Second
}

// Timeouts returns the per-category wait budgets with config overrides applied.
func (c *Config) Timeouts() barsize.Timeouts {
	t := barsize.DefaultTimeouts()
	for name, secs := range c.TimeoutSeconds {
		if cat, ok := barsize.ParseCategory(name); ok && secs > 0 {
			t[cat] = time.Duration(secs) * time.Second
		}
	}
	return t
}

// FetchConfig assembles the fetcher wait budgets from the config.
func (c *Config) FetchConfig() fetch.Config {
	return fetch.Config{
		DialTimeout:    time.Duration(c.DialTimeoutSeconds) * time.Second,
		Settle:         time.Duration(c.SettleSeconds) * time.Second,
		DisconnectWait: time.Duration(c.DisconnectWaitSeconds) * time.Second,
		Timeouts:       c.Timeouts(),
	}
}
