package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Heuristic thresholds (identifier
// name patterns, trend flatness, correlation bands) are configuration, not
// hard-coded assumptions.
type Config struct {
	Port           int      `mapstructure:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`

	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	Cleaning struct {
		IdentifierPatterns []string `mapstructure:"identifier_patterns"`
	} `mapstructure:"cleaning"`

	Narrative struct {
		FlatSlopeRatio  float64 `mapstructure:"flat_slope_ratio"`
		WeakBand        float64 `mapstructure:"weak_band"`
		StrongBand      float64 `mapstructure:"strong_band"`
		CacheTTLMinutes int     `mapstructure:"cache_ttl_minutes"`
	} `mapstructure:"narrative"`

	Cluster struct {
		MaxK int `mapstructure:"max_k"`
	} `mapstructure:"cluster"`

	DB struct {
		FetchLimit int `mapstructure:"fetch_limit"`
	} `mapstructure:"db"`
}

// Load reads configuration with the usual precedence: environment variables
// (AUTODASH_*), then an optional config file, then defaults. path may name a
// config file directly; when empty the working directory is searched for
// autodash.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8001)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("max_upload_bytes", 100*1024*1024)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("cleaning.identifier_patterns", []string{"id", "code", "key"})
	v.SetDefault("narrative.flat_slope_ratio", 0.01)
	v.SetDefault("narrative.weak_band", 0.2)
	v.SetDefault("narrative.strong_band", 0.5)
	v.SetDefault("narrative.cache_ttl_minutes", 30)
	v.SetDefault("cluster.max_k", 10)
	v.SetDefault("db.fetch_limit", 10000)

	v.SetEnvPrefix("AUTODASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("autodash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine, defaults apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
