package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/network"
)

// ErrThresholdOrder is returned when the ask threshold exceeds the merge
// threshold.
var ErrThresholdOrder = eris.New("nodes_ask_threshold must not exceed nodes_merge_threshold")

// Config holds the full application configuration.
type Config struct {
	Consolidation ConsolidationConfig `yaml:"consolidation" mapstructure:"consolidation"`
	Weights       WeightsConfig       `yaml:"weights" mapstructure:"weights"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// ConsolidationConfig configures node classification and scoring.
type ConsolidationConfig struct {
	NodesMergeThreshold float64 `yaml:"nodes_merge_threshold" mapstructure:"nodes_merge_threshold"`
	NodesAskThreshold   float64 `yaml:"nodes_ask_threshold" mapstructure:"nodes_ask_threshold"`
	NodesMatchRadiusKM  float64 `yaml:"nodes_match_radius_km" mapstructure:"nodes_match_radius_km"`
	ProximityHorizonKM  float64 `yaml:"proximity_horizon_km" mapstructure:"proximity_horizon_km"`
	SpatialPrune        bool    `yaml:"spatial_prune" mapstructure:"spatial_prune"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	IDPrefix            string  `yaml:"id_prefix" mapstructure:"id_prefix"`
}

// Thresholds returns the classifier thresholds.
func (c ConsolidationConfig) Thresholds() compare.Thresholds {
	return compare.Thresholds{
		MergeAbove:    c.NodesMergeThreshold,
		AskAbove:      c.NodesAskThreshold,
		MatchRadiusKM: c.NodesMatchRadiusKM,
	}
}

// WeightsConfig overrides per-field comparison weights. Field names are
// matched case-insensitively.
type WeightsConfig struct {
	Nodes map[string]float64 `yaml:"nodes" mapstructure:"nodes"`
	Spans map[string]float64 `yaml:"spans" mapstructure:"spans"`
}

// StoreConfig configures the run audit store.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32       `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32       `yaml:"min_conns" mapstructure:"min_conns"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig controls retries of transient store failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the review API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment and validates it.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.netmerge")

	// Environment
	v.SetEnvPrefix("NETMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("consolidation.nodes_merge_threshold", 100.0)
	v.SetDefault("consolidation.nodes_ask_threshold", 0.0)
	v.SetDefault("consolidation.nodes_match_radius_km", 10.0)
	v.SetDefault("consolidation.proximity_horizon_km", compare.DefaultProximityHorizonKM)
	v.SetDefault("consolidation.spatial_prune", true)
	v.SetDefault("consolidation.concurrency", 8)
	v.SetDefault("consolidation.id_prefix", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "netmerge.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("store.retry.initial_backoff_ms", 100)
	v.SetDefault("store.retry.max_backoff_ms", 2000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks ranges and cross-field constraints, reporting every
// problem at once.
func (c *Config) Validate() error {
	var errs []string
	cc := c.Consolidation

	for name, v := range map[string]float64{
		"nodes_merge_threshold": cc.NodesMergeThreshold,
		"nodes_ask_threshold":   cc.NodesAskThreshold,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("consolidation.%s must be within [0, 100], got %g", name, v))
		}
	}
	ordered := cc.NodesAskThreshold <= cc.NodesMergeThreshold
	if !ordered {
		errs = append(errs, fmt.Sprintf("consolidation.nodes_ask_threshold (%g) exceeds nodes_merge_threshold (%g)",
			cc.NodesAskThreshold, cc.NodesMergeThreshold))
	}
	if cc.NodesMatchRadiusKM <= 0 {
		errs = append(errs, "consolidation.nodes_match_radius_km must be positive")
	}
	if cc.ProximityHorizonKM <= 0 {
		errs = append(errs, "consolidation.proximity_horizon_km must be positive")
	}
	if cc.Concurrency < 1 {
		errs = append(errs, "consolidation.concurrency must be at least 1")
	}

	if _, err := compare.ResolveWeights(network.KindNode, c.Weights.Nodes); err != nil {
		errs = append(errs, "weights.nodes: "+err.Error())
	}
	if _, err := compare.ResolveWeights(network.KindSpan, c.Weights.Spans); err != nil {
		errs = append(errs, "weights.spans: "+err.Error())
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres or none, got %q", c.Store.Driver))
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if r := c.Store.Retry; r.MaxAttempts < 1 || r.InitialBackoffMs < 0 || r.MaxBackoffMs < r.InitialBackoffMs {
		errs = append(errs, fmt.Sprintf("store.retry: need max_attempts >= 1 and 0 <= initial_backoff_ms <= max_backoff_ms, got %+v", r))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_limit must not be negative, got %g", c.Server.RateLimit))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Sprintf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	msg := strings.Join(errs, "; ")
	if !ordered {
		return eris.Wrapf(ErrThresholdOrder, "config: %s", msg)
	}
	return eris.Errorf("config: %s", msg)
}

// Scorer builds the similarity scorer from the weight overrides and the
// proximity horizon.
func (c *Config) Scorer() (*compare.Scorer, error) {
	nodes, err := compare.ResolveWeights(network.KindNode, c.Weights.Nodes)
	if err != nil {
		return nil, eris.Wrap(err, "config: node weights")
	}
	spans, err := compare.ResolveWeights(network.KindSpan, c.Weights.Spans)
	if err != nil {
		return nil, eris.Wrap(err, "config: span weights")
	}
	return compare.NewScorer(
		compare.WithNodeWeights(nodes),
		compare.WithSpanWeights(spans),
		compare.WithProximityHorizon(c.Consolidation.ProximityHorizonKM),
	), nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
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
