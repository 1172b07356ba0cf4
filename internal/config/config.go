// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	ServiceTitan ServiceTitanConfig `yaml:"servicetitan" mapstructure:"servicetitan"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Sync         SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// ServiceTitanConfig holds the upstream API credentials and tuning.
type ServiceTitanConfig struct {
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string  `yaml:"client_secret" mapstructure:"client_secret"`
	AppKey       string  `yaml:"app_key" mapstructure:"app_key"`
	TenantID     string  `yaml:"tenant_id" mapstructure:"tenant_id"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	AuthURL      string  `yaml:"auth_url" mapstructure:"auth_url"`
	RPS          float64 `yaml:"rps" mapstructure:"rps"`
}

// Validate checks that the credential set is complete.
func (c ServiceTitanConfig) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.AppKey == "" || c.TenantID == "" {
		return eris.New("config: servicetitan client_id, client_secret, app_key, and tenant_id are required")
	}
	return nil
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SyncConfig tunes the reconciliation run.
type SyncConfig struct {
	HorizonDays       int    `yaml:"horizon_days" mapstructure:"horizon_days"`
	LookbackDays      int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	EnrichTimeoutSecs int    `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
	EnrichWorkers     int    `yaml:"enrich_workers" mapstructure:"enrich_workers"`
	Timezone          string `yaml:"timezone" mapstructure:"timezone"`
}

// EnrichTimeout returns the enrichment deadline as a duration.
func (c SyncConfig) EnrichTimeout() time.Duration {
	return time.Duration(c.EnrichTimeoutSecs) * time.Second
}

// Location resolves the configured IANA timezone.
func (c SyncConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %s", c.Timezone)
	}
	return loc, nil
}

// ServerConfig configures the trigger endpoint server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	SharedSecret string   `yaml:"shared_secret" mapstructure:"shared_secret"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("servicetitan.base_url", "https://api.servicetitan.io")
	v.SetDefault("servicetitan.auth_url", "https://auth.servicetitan.io/connect/token")
	v.SetDefault("servicetitan.rps", 5.0)
	v.SetDefault("sync.horizon_days", 14)
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.enrich_timeout_secs", 10)
	v.SetDefault("sync.enrich_workers", 4)
	v.SetDefault("sync.timezone", "America/Chicago")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
