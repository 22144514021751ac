package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal   PortalConfig   `yaml:"portal" mapstructure:"portal"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Geo      GeoConfig      `yaml:"geo" mapstructure:"geo"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the upstream property portal.
type PortalConfig struct {
	SearchURL      string  `yaml:"search_url" mapstructure:"search_url"`
	City           string  `yaml:"city" mapstructure:"city"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// PipelineConfig configures the ingestion coordinator.
type PipelineConfig struct {
	MaxPages    int `yaml:"max_pages" mapstructure:"max_pages"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// RetryConfig configures fetch retry behavior.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// GeoConfig configures district resolution.
type GeoConfig struct {
	BoundaryFile string  `yaml:"boundary_file" mapstructure:"boundary_file"`
	MinLat       float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat       float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon       float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon       float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ExportConfig configures the snapshot export stage.
type ExportConfig struct {
	OutDir    string `yaml:"out_dir" mapstructure:"out_dir"`
	FTPURL    string `yaml:"ftp_url" mapstructure:"ftp_url"`
	FTPUser   string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPass   string `yaml:"ftp_pass" mapstructure:"ftp_pass"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
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
	v.SetEnvPrefix("REALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.search_url", "https://realty.yandex.ru/ufa/kupit/kvartira/")
	v.SetDefault("portal.city", "Уфа")
	v.SetDefault("portal.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("portal.timeout_secs", 20)
	v.SetDefault("portal.requests_per_sec", 0.5)
	v.SetDefault("pipeline.max_pages", 25)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("geo.boundary_file", "districts.yaml")
	// Ufa metropolitan bounding box.
	v.SetDefault("geo.min_lat", 54.50)
	v.SetDefault("geo.max_lat", 54.95)
	v.SetDefault("geo.min_lon", 55.75)
	v.SetDefault("geo.max_lon", 56.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "realty.db")
	v.SetDefault("export.out_dir", ".")
	v.SetDefault("export.key_prefix", "listings")
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
