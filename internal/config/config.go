package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Events    EventsConfig    `mapstructure:"events"`
	Prices    PricesConfig    `mapstructure:"prices"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Model     ModelConfig     `mapstructure:"model"`
	Inference InferenceConfig `mapstructure:"inference"`
}

type StorageConfig struct {
	Type            string   `mapstructure:"type"` // "localfs" or "s3"
	Path            string   `mapstructure:"path"` // For localfs
	S3              S3Config `mapstructure:"s3"`   // For S3
	ProcessedPrefix string   `mapstructure:"processed_prefix"`
	ModelsPrefix    string   `mapstructure:"models_prefix"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type EventsConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	BundleConcurrency  int           `mapstructure:"bundle_concurrency"`
	BundleTimeout      time.Duration `mapstructure:"bundle_timeout"`
	DayTimeout         time.Duration `mapstructure:"day_timeout"`
	MinBundlesFraction float64       `mapstructure:"min_bundles_fraction"`
}

type PricesConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PipelineConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

type ModelConfig struct {
	RunID string `mapstructure:"run_id"`
}

type InferenceConfig struct {
	Temperature       float64 `mapstructure:"temperature"`
	TopCountriesCount int     `mapstructure:"top_countries_count"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:            "localfs",
			Path:            "data",
			ProcessedPrefix: "processed_data/",
			ModelsPrefix:    "trained_models/",
		},
		Events: EventsConfig{
			BaseURL:            "http://data.gdeltproject.org/gdeltv2",
			BundleConcurrency:  8,
			BundleTimeout:      30 * time.Second,
			DayTimeout:         540 * time.Second,
			MinBundlesFraction: 0.5,
		},
		Prices: PricesConfig{
			BaseURL:  "https://www.alphavantage.co",
			CacheTTL: 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			LookbackDays: 90,
		},
		Inference: InferenceConfig{
			Temperature:       0.25,
			TopCountriesCount: 15,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required when type is localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.Events.BundleConcurrency < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("bundle_concurrency must be positive, got %d", c.Events.BundleConcurrency))
	}
	if c.Events.MinBundlesFraction < 0 || c.Events.MinBundlesFraction > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_bundles_fraction must be in [0, 1], got %f", c.Events.MinBundlesFraction))
	}

	if c.Pipeline.LookbackDays < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("lookback_days must be positive, got %d", c.Pipeline.LookbackDays))
	}

	if c.Inference.Temperature <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("temperature must be positive, got %f", c.Inference.Temperature))
	}
	if c.Inference.TopCountriesCount < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("top_countries_count must be positive, got %d", c.Inference.TopCountriesCount))
	}

	return nil
}
