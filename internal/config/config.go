package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Spatial SpatialConfig `yaml:"spatial" mapstructure:"spatial"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig  `yaml:"pool" mapstructure:"pool"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// RetryConfig controls how many times the initial database connection is attempted.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SearchRPS          float64  `yaml:"search_rps" mapstructure:"search_rps"`
	SearchBurst        int      `yaml:"search_burst" mapstructure:"search_burst"`
	ExtraTemplatePaths string   `yaml:"extra_template_paths" mapstructure:"extra_template_paths"`
	ExtraPublicPaths   string   `yaml:"extra_public_paths" mapstructure:"extra_public_paths"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SpatialConfig configures extent storage and the map widgets.
type SpatialConfig struct {
	// SRID of the stored extents. Incoming geometries without an SRID are
	// assumed to be in this reference system.
	SRID int `yaml:"srid" mapstructure:"srid"`

	// Testing skips extent schema setup on startup.
	Testing bool `yaml:"testing" mapstructure:"testing"`

	// DefaultMapExtent is handed to the search widget as its initial view,
	// formatted "minx,miny,maxx,maxy".
	DefaultMapExtent string `yaml:"default_map_extent" mapstructure:"default_map_extent"`

	CacheEntries       int `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLSecs       int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	ReindexConcurrency int `yaml:"reindex_concurrency" mapstructure:"reindex_concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPATIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("store.retry.max_attempts", 5)
	v.SetDefault("store.retry.initial_backoff_ms", 500)
	v.SetDefault("store.retry.max_backoff_ms", 10000)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.search_rps", 20.0)
	v.SetDefault("server.search_burst", 40)
	v.SetDefault("server.extra_template_paths", "")
	v.SetDefault("server.extra_public_paths", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("spatial.srid", 4326)
	v.SetDefault("spatial.testing", false)
	v.SetDefault("spatial.default_map_extent", "")
	v.SetDefault("spatial.cache_entries", 256)
	v.SetDefault("spatial.cache_ttl_secs", 60)
	v.SetDefault("spatial.reindex_concurrency", 4)

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

// Validate checks that the fields required by a run mode are present.
// Modes: "serve", "migrate", "cli".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Spatial.SRID <= 0 {
		errs = append(errs, "spatial.srid must be > 0")
	}
	if c.Spatial.ReindexConcurrency < 1 || c.Spatial.ReindexConcurrency > 64 {
		errs = append(errs, "spatial.reindex_concurrency must be between 1 and 64")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.SearchRPS < 0 {
			errs = append(errs, "server.search_rps must be >= 0")
		}
	case "migrate", "cli":
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// AppendPath appends dir to a comma separated path list unless the list
// already holds it.
func AppendPath(list, dir string) string {
	if list == "" {
		return dir
	}
	for _, p := range SplitPaths(list) {
		if p == dir {
			return list
		}
	}
	return list + "," + dir
}

// SplitPaths splits a comma separated path list, dropping empty entries.
func SplitPaths(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
