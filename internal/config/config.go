package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"InkaSwap-Provider/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "INKASWAP_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件。
var DefaultPath = filepath.Join("configs", "inkaswap.json")

// Config 描述了 inkaswap 工具在启动阶段需要加载的核心配置。
type Config struct {
	Networks NetworksConfig `json:"networks"`
	Deploy   DeployConfig   `json:"deploy"`
	Storage  StorageConfig  `json:"storage"`
	Tracker  TrackerConfig  `json:"tracker"`
	Logging  logger.Config  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// NetworksConfig 指向 YAML 网络定义文件。
type NetworksConfig struct {
	File    string `json:"file"`
	Default string `json:"default"`
}

// DeployConfig 控制合约迁移。
type DeployConfig struct {
	// Artifact 是 truffle 编译产物路径。
	Artifact string `json:"artifact"`
	// ConfirmTimeoutSeconds 为等待部署回执的默认时长。
	ConfirmTimeoutSeconds int `json:"confirm_timeout_seconds"`
}

// StorageConfig 描述部署与交易记录的存储后端。
type StorageConfig struct {
	Records RecordStoreConfig `json:"records"`
}

// RecordStoreConfig 支持 memory 与 mysql 两种驱动。
type RecordStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// TrackerConfig 描述待确认交易队列。
type TrackerConfig struct {
	Driver              string         `json:"driver"`
	Workers             int            `json:"workers"`
	PollIntervalSeconds int            `json:"poll_interval_seconds"`
	MaxAttempts         int            `json:"max_attempts"`
	Redis               RedisConfig    `json:"redis"`
	RabbitMQ            RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 对应 Redis 队列参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 对应 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
	Prefetch   int    `json:"prefetch"`
}

// MetricsConfig 控制 Prometheus 指标端点。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// ResolvePath 返回环境变量指定的配置路径，未设置时使用默认值。
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回未提供配置文件时使用的配置，相对路径基于 baseDir。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	c.Networks.File = resolve(baseDir, c.Networks.File, "networks.yaml")
	if c.Deploy.Artifact != "" {
		c.Deploy.Artifact = resolve(baseDir, c.Deploy.Artifact, "")
	}
	if c.Deploy.ConfirmTimeoutSeconds <= 0 {
		c.Deploy.ConfirmTimeoutSeconds = 300
	}

	if c.Storage.Records.Driver == "" {
		c.Storage.Records.Driver = "memory"
	}

	if c.Tracker.Driver == "" {
		c.Tracker.Driver = "memory"
	}
	if c.Tracker.Workers <= 0 {
		c.Tracker.Workers = 1
	}
	if c.Tracker.PollIntervalSeconds <= 0 {
		c.Tracker.PollIntervalSeconds = 15
	}
	if c.Tracker.MaxAttempts <= 0 {
		c.Tracker.MaxAttempts = 40
	}
	if c.Tracker.Redis.Queue == "" {
		c.Tracker.Redis.Queue = "inkaswap:pending_tx"
	}
	if c.Tracker.RabbitMQ.Queue == "" {
		c.Tracker.RabbitMQ.Queue = "inkaswap.pending_tx"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path, "")
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9464"
	}

	c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir, "data")
}

func (c *Config) validate() error {
	switch c.Storage.Records.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Storage.Records.DSN) == "" {
			return errors.New("mysql 存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("不支持的存储驱动: %s", c.Storage.Records.Driver)
	}

	switch c.Tracker.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Tracker.Redis.Address) == "" {
			return errors.New("redis 队列需要配置 address")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Tracker.RabbitMQ.URL) == "" {
			return errors.New("rabbitmq 队列需要配置 url")
		}
	default:
		return fmt.Errorf("不支持的队列驱动: %s", c.Tracker.Driver)
	}
	return nil
}

// resolve 将相对路径转换为基于配置目录的绝对路径，空值使用 fallback。
func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
