/*
Package config loads process configuration.

PURPOSE:
  Reads defaults, an optional YAML file, a .env file and AP_-prefixed
  environment variables (highest precedence), then hands each component its
  own explicit config struct. No component reads configuration globally.

ENVIRONMENT:
  Keys map to variables by upper-casing and replacing dots with
  underscores: matching.price_tolerance_percent is
  AP_MATCHING_PRICE_TOLERANCE_PERCENT.

SEE ALSO:
  - logger.go: logrus setup and LogError
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/ap-engine/ingestion"
	"github.com/warp/ap-engine/learning"
	"github.com/warp/ap-engine/matching"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Rematch    RematchConfig    `mapstructure:"rematch"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type MatchingConfig struct {
	PriceTolerancePercent float64 `mapstructure:"price_tolerance_percent"`
	QuantityTolerance     float64 `mapstructure:"quantity_tolerance"`
	FinancialTolerance    float64 `mapstructure:"financial_tolerance"`
	FuzzyThreshold        int     `mapstructure:"fuzzy_threshold"`
	FuzzyStrategy         string  `mapstructure:"fuzzy_strategy"`
}

type IngestionConfig struct {
	Workers       int `mapstructure:"workers"`
	ProgressEvery int `mapstructure:"progress_every"`
}

type ExtractionConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Provider is "local" or "gcs".
	Provider        string `mapstructure:"provider"`
	Dir             string `mapstructure:"dir"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type RedisConfig struct {
	// Address enables the Redis invoice lock when set.
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type LearningConfig struct {
	SuggestionConfidence float64 `mapstructure:"suggestion_confidence"`
	PromotionConfidence  float64 `mapstructure:"promotion_confidence"`
}

type MonitorConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	DiscountWindowDays int           `mapstructure:"discount_window_days"`
}

type RematchConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "./data/ap.db")

	v.SetDefault("matching.price_tolerance_percent", 5.0)
	v.SetDefault("matching.quantity_tolerance", 0.001)
	v.SetDefault("matching.financial_tolerance", 0.01)
	v.SetDefault("matching.fuzzy_threshold", matching.DefaultThreshold)
	v.SetDefault("matching.fuzzy_strategy", matching.StrategyLevenshtein)

	v.SetDefault("ingestion.workers", 9)
	v.SetDefault("ingestion.progress_every", 5)

	v.SetDefault("extraction.url", "http://localhost:8090/extract")
	v.SetDefault("extraction.api_key", "")
	v.SetDefault("extraction.timeout", 2*time.Minute)

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.dir", "./data/documents")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "documents")
	v.SetDefault("storage.credentials_file", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)

	v.SetDefault("learning.suggestion_confidence", 0.8)
	v.SetDefault("learning.promotion_confidence", 0.9)

	v.SetDefault("monitor.interval", time.Hour)
	v.SetDefault("monitor.discount_window_days", 3)

	v.SetDefault("rematch.workers", 2)
	v.SetDefault("rematch.queue_size", 256)

	v.SetDefault("log.level", "info")
}

// Load reads configuration. configFile may be empty; a missing .env is not
// an error.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Matching.PriceTolerancePercent < 0:
		return fmt.Errorf("matching.price_tolerance_percent must be >= 0")
	case c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 100:
		return fmt.Errorf("matching.fuzzy_threshold must be within 0..100")
	case c.Storage.Provider != "local" && c.Storage.Provider != "gcs":
		return fmt.Errorf("storage.provider must be local or gcs, got %q", c.Storage.Provider)
	case c.Storage.Provider == "gcs" && c.Storage.Bucket == "":
		return fmt.Errorf("storage.bucket is required for gcs")
	}
	return nil
}

// =============================================================================
// COMPONENT CONFIGS
// =============================================================================

func (c *Config) EngineConfig() matching.Config {
	return matching.Config{
		PriceTolerancePercent: decimal.NewFromFloat(c.Matching.PriceTolerancePercent),
		QuantityTolerance:     decimal.NewFromFloat(c.Matching.QuantityTolerance),
		FinancialTolerance:    decimal.NewFromFloat(c.Matching.FinancialTolerance),
	}
}

func (c *Config) LearningConfig() learning.Config {
	return learning.Config{
		SuggestionConfidence: c.Learning.SuggestionConfidence,
		PromotionConfidence:  c.Learning.PromotionConfidence,
	}
}

func (c *Config) IngestionOptions() ingestion.Options {
	return ingestion.Options{Workers: c.Ingestion.Workers, ProgressEvery: c.Ingestion.ProgressEvery}
}
