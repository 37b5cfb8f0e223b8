package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"poolserve/internal/client"
	"poolserve/internal/logger"
	"poolserve/internal/server"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Bench  BenchConfig  `yaml:"bench" json:"bench"`
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	DocRoot        string `yaml:"doc_root" json:"doc_root"`
	PoolSize       *int   `yaml:"pool_size" json:"pool_size"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
	SleepDelay     string `yaml:"sleep_delay" json:"sleep_delay"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
}

// AdminConfig は管理用 HTTP サーバーの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// BenchConfig は負荷生成の設定
type BenchConfig struct {
	Requests    int    `yaml:"requests" json:"requests"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	Path        string `yaml:"path" json:"path"`
}

// Config は解決済みの実行時設定
type Config struct {
	Server    server.Config
	PoolSize  int
	Admin     AdminConfig
	LogLevel  logger.Level
	Benchmark client.Config
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Server:   server.DefaultConfig(),
		PoolSize: 4,
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		LogLevel:  logger.LevelInfo,
		Benchmark: client.DefaultConfig(),
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToConfig は FileConfig を実行時設定に変換する
func (f *FileConfig) ToConfig() (Config, error) {
	config := DefaultConfig()
	sc := f.Server

	if sc.Addr != "" {
		config.Server.Addr = sc.Addr
	}
	if sc.DocRoot != "" {
		config.Server.DocRoot = sc.DocRoot
	}
	// 0 はそのままプール作成に渡し、エラーにする
	if sc.PoolSize != nil {
		config.PoolSize = *sc.PoolSize
	}
	if sc.MaxConnections > 0 {
		config.Server.MaxConnections = sc.MaxConnections
	}
	if sc.SleepDelay != "" {
		d, err := time.ParseDuration(sc.SleepDelay)
		if err != nil {
			return config, fmt.Errorf("invalid sleep_delay: %w", err)
		}
		config.Server.SleepDelay = d
	}
	if sc.ReadTimeout != "" {
		d, err := time.ParseDuration(sc.ReadTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid read_timeout: %w", err)
		}
		config.Server.ReadTimeout = d
	}

	// Admin設定
	config.Admin.Enabled = f.Admin.Enabled
	if f.Admin.Addr != "" {
		config.Admin.Addr = f.Admin.Addr
	}

	// Log設定
	if f.Log.Level != "" {
		level, err := logger.ParseLevel(f.Log.Level)
		if err != nil {
			return config, err
		}
		config.LogLevel = level
	}

	// Bench設定
	if f.Bench.Requests > 0 {
		config.Benchmark.Requests = f.Bench.Requests
	}
	if f.Bench.Concurrency > 0 {
		config.Benchmark.Concurrency = f.Bench.Concurrency
	}
	if f.Bench.Path != "" {
		config.Benchmark.Path = f.Bench.Path
	}

	return config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	sc := f.Server

	if sc.PoolSize != nil && *sc.PoolSize < 0 {
		return fmt.Errorf("server.pool_size must be non-negative")
	}

	if sc.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be non-negative")
	}

	if f.Bench.Requests < 0 {
		return fmt.Errorf("bench.requests must be non-negative")
	}

	if f.Bench.Concurrency < 0 {
		return fmt.Errorf("bench.concurrency must be non-negative")
	}

	if f.Bench.Path != "" && !strings.HasPrefix(f.Bench.Path, "/") {
		return fmt.Errorf("bench.path must start with /")
	}

	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}
