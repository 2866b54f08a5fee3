package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig is the project configuration.
type EngineConfig struct {
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Features FeaturesConfig `yaml:"features"`
	Rules    RulesConfig    `yaml:"rules"`
	Graph    GraphConfig    `yaml:"graph"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig controls the input reader.
type InputConfig struct {
	Redis RedisInputConfig `yaml:"redis"`
}

// RedisInputConfig controls Redis input.
type RedisInputConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// PipelineConfig controls pipeline behavior.
type PipelineConfig struct {
	Workers         int           `yaml:"workers"`
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
}

// StorageConfig selects and configures the backing store.
type StorageConfig struct {
	Mode                  string             `yaml:"mode"` // memory|redis
	MaxEventsPerIndicator int                `yaml:"max_events_per_indicator"`
	Redis                 RedisStorageConfig `yaml:"redis"`
}

// RedisStorageConfig controls the Redis-backed store.
type RedisStorageConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	KeyPrefix       string        `yaml:"key_prefix"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRecentEvents int           `yaml:"max_recent_events"`
}

// FeaturesConfig controls feature extraction.
type FeaturesConfig struct {
	WindowSize     int      `yaml:"window_size"`
	BaselineMean   float64  `yaml:"baseline_mean"`
	BaselineStddev float64  `yaml:"baseline_stddev"`
	HighRiskGeos   []string `yaml:"high_risk_geos"`
	Denylist       []string `yaml:"denylist"`
}

// RulesConfig controls the rule registry.
type RulesConfig struct {
	Sigma SigmaRulesConfig `yaml:"sigma"`
}

// SigmaRulesConfig controls optional Sigma rule loading.
type SigmaRulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GraphConfig controls graph analytics and relationship inference.
type GraphConfig struct {
	Damping             float64       `yaml:"damping"`
	Iterations          int           `yaml:"iterations"`
	CommunityThreshold  float64       `yaml:"community_threshold"`
	CorrelationWindow   time.Duration `yaml:"correlation_window"`
	CorrelationLookback time.Duration `yaml:"correlation_lookback"`
	RecentLimit         int           `yaml:"recent_limit"`
}

// AlertsConfig controls alert output.
type AlertsConfig struct {
	Output AlertOutputConfig `yaml:"output"`
}

// AlertOutputConfig controls the alert sink.
type AlertOutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|http|clickhouse
	File       FileOutputConfig       `yaml:"file"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL      string            `yaml:"url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// ServerConfig controls the operational HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
