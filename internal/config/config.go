package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 为所有环境变量覆盖项的前缀，例如 AGENTICA_SERVER_ADDRESS。
const EnvPrefix = "AGENTICA"

// Config 描述了 Agentica 在启动阶段需要加载的全部配置。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Storage       StorageConfig       `mapstructure:"storage"`
	AgentRuntime  AgentRuntimeConfig  `mapstructure:"agent_runtime"`
	WalletService WalletServiceConfig `mapstructure:"wallet_service"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Web3          Web3Config          `mapstructure:"web3"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Saga          SagaConfig          `mapstructure:"saga"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `mapstructure:"address"`
	ServiceName            string `mapstructure:"service_name"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	MaxBodyBytes           int64  `mapstructure:"max_body_bytes"`
}

// ShutdownTimeout 返回优雅退出的等待时间。
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return seconds(c.ShutdownTimeoutSeconds)
}

// AuthConfig 控制静态 API Key 鉴权。
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level   string      `mapstructure:"level"`
	Format  string      `mapstructure:"format"`
	Outputs []string    `mapstructure:"outputs"`
	Audit   AuditConfig `mapstructure:"audit"`
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StorageConfig 描述持久化后端。
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	MySQL  MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `mapstructure:"conn_max_idle_time_seconds"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// AgentRuntimeConfig 描述外部 Agent Runtime 的访问方式。
// BaseURL 为空时在每次调用前读取 BaseURLEnv 指定的环境变量。
type AgentRuntimeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	BaseURLEnv     string `mapstructure:"base_url_env"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout 返回单次调用的超时时间。
func (c AgentRuntimeConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// WalletServiceConfig 描述托管钱包服务。
type WalletServiceConfig struct {
	BaseURL                    string `mapstructure:"base_url"`
	APIKey                     string `mapstructure:"api_key"`
	APIKeyEnv                  string `mapstructure:"api_key_env"`
	WalletSecret               string `mapstructure:"wallet_secret"`
	WalletSecretEnv            string `mapstructure:"wallet_secret_env"`
	Network                    string `mapstructure:"network"`
	TimeoutSeconds             int    `mapstructure:"timeout_seconds"`
	ConfirmationTimeoutSeconds int    `mapstructure:"confirmation_timeout_seconds"`
	PollIntervalMillis         int    `mapstructure:"poll_interval_millis"`
	SwapsEnabled               bool   `mapstructure:"swaps_enabled"`
	ApprovalMultiplier         int64  `mapstructure:"approval_multiplier"`
	DefaultSlippageBasisPoints int    `mapstructure:"default_slippage_bps"`
}

// Timeout 返回单次调用的超时时间。
func (c WalletServiceConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ConfirmationTimeout 返回等待链上确认的上限。
func (c WalletServiceConfig) ConfirmationTimeout() time.Duration {
	return seconds(c.ConfirmationTimeoutSeconds)
}

// PollInterval 返回查询确认状态的初始间隔。
func (c WalletServiceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// ResolveAPIKey 优先使用显式配置，其次读取环境变量。
func (c WalletServiceConfig) ResolveAPIKey() string {
	return firstNonEmpty(c.APIKey, c.APIKeyEnv)
}

// ResolveWalletSecret 优先使用显式配置，其次读取环境变量。
func (c WalletServiceConfig) ResolveWalletSecret() string {
	return firstNonEmpty(c.WalletSecret, c.WalletSecretEnv)
}

// LLMConfig 用于配置策略生成所使用的大模型。
type LLMConfig struct {
	Provider string       `mapstructure:"provider"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口。
type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	APIKeyEnv      string  `mapstructure:"api_key_env"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Timeout 返回请求超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ResolveAPIKey 优先使用显式配置，其次读取环境变量。
func (c OpenAIConfig) ResolveAPIKey() string {
	return firstNonEmpty(c.APIKey, c.APIKeyEnv)
}

// Web3Config 包含网络列表与代币表位置。
type Web3Config struct {
	DefaultNetwork string          `mapstructure:"default_network"`
	TokensFile     string          `mapstructure:"tokens_file"`
	Networks       []NetworkConfig `mapstructure:"networks"`
}

// NetworkConfig 描述一个 EVM 网络。RPCURL 为空时不做链上余额查询。
type NetworkConfig struct {
	Name          string `mapstructure:"name"`
	ChainID       int64  `mapstructure:"chain_id"`
	RPCURL        string `mapstructure:"rpc_url"`
	ExplorerTxURL string `mapstructure:"explorer_tx_url"`
}

// DispatchConfig 控制动作分发。
type DispatchConfig struct {
	RoomLock       string      `mapstructure:"room_lock"`
	LockTTLSeconds int         `mapstructure:"lock_ttl_seconds"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// LockTTL 返回房间锁的过期时间。
func (c DispatchConfig) LockTTL() time.Duration {
	return seconds(c.LockTTLSeconds)
}

// RedisConfig 为 Redis 连接参数。
type RedisConfig struct {
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	KeyPrefix        string `mapstructure:"key_prefix"`
	Queue            string `mapstructure:"queue"`
	BlockWaitSeconds int    `mapstructure:"block_wait_seconds"`
}

// BlockWait 返回 BRPOP 的阻塞时长。
func (c RedisConfig) BlockWait() time.Duration {
	return seconds(c.BlockWaitSeconds)
}

// SagaConfig 控制建房流程的失败策略与意图日志。
type SagaConfig struct {
	FailurePolicy            string `mapstructure:"failure_policy"`
	IntentLog                bool   `mapstructure:"intent_log"`
	ReconcileIntervalSeconds int    `mapstructure:"reconcile_interval_seconds"`
	StaleAfterSeconds        int    `mapstructure:"stale_after_seconds"`
	ReconcileBatchSize       int    `mapstructure:"reconcile_batch_size"`
}

// ReconcileInterval 返回巡检间隔。
func (c SagaConfig) ReconcileInterval() time.Duration {
	return seconds(c.ReconcileIntervalSeconds)
}

// StaleAfter 返回意图被视为悬挂的时间阈值。
func (c SagaConfig) StaleAfter() time.Duration {
	return seconds(c.StaleAfterSeconds)
}

// QueueConfig 描述对账队列。
type QueueConfig struct {
	Driver   string         `mapstructure:"driver"`
	Workers  int            `mapstructure:"workers"`
	Buffer   int            `mapstructure:"buffer"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// RabbitMQConfig 为 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Queue      string `mapstructure:"queue"`
	Prefetch   int    `mapstructure:"prefetch"`
	Durable    bool   `mapstructure:"durable"`
	AutoDelete bool   `mapstructure:"auto_delete"`
}

// AlertingConfig 描述告警通道。
type AlertingConfig struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

// WebhookConfig 描述一个 webhook 告警通道。
type WebhookConfig struct {
	Channel string `mapstructure:"channel"`
	URL     string `mapstructure:"url"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

var defaults = map[string]any{
	"server.address":                              ":8080",
	"server.service_name":                         "agentica-platform",
	"server.shutdown_timeout_seconds":             5,
	"server.max_body_bytes":                       1 << 20,
	"logging.level":                               "info",
	"logging.format":                              "json",
	"logging.audit.max_size_mb":                   100,
	"logging.audit.max_backups":                   7,
	"logging.audit.max_age_days":                  30,
	"storage.driver":                              "memory",
	"storage.mysql.max_open_conns":                20,
	"storage.mysql.max_idle_conns":                10,
	"storage.mysql.conn_max_lifetime_seconds":     1800,
	"storage.mysql.conn_max_idle_time_seconds":    600,
	"storage.mysql.auto_migrate":                  true,
	"agent_runtime.base_url_env":                  "ELIZA_SERVER_URL",
	"agent_runtime.timeout_seconds":               30,
	"wallet_service.api_key_env":                  "WALLET_API_KEY",
	"wallet_service.wallet_secret_env":            "WALLET_SECRET",
	"wallet_service.network":                      "base-sepolia",
	"wallet_service.timeout_seconds":              30,
	"wallet_service.confirmation_timeout_seconds": 60,
	"wallet_service.poll_interval_millis":         1000,
	"wallet_service.swaps_enabled":                true,
	"wallet_service.approval_multiplier":          10,
	"wallet_service.default_slippage_bps":         100,
	"llm.provider":                                "openai",
	"llm.openai.api_key_env":                      "OPENAI_API_KEY",
	"llm.openai.model":                            "gpt-4o-mini",
	"llm.openai.max_tokens":                       500,
	"llm.openai.temperature":                      0.7,
	"llm.openai.timeout_seconds":                  30,
	"web3.default_network":                        "base-sepolia",
	"dispatch.room_lock":                          "none",
	"dispatch.lock_ttl_seconds":                   120,
	"dispatch.redis.key_prefix":                   "agentica:room-lock:",
	"saga.failure_policy":                         "fail_fast",
	"saga.intent_log":                             true,
	"saga.reconcile_interval_seconds":             60,
	"saga.stale_after_seconds":                    300,
	"saga.reconcile_batch_size":                   50,
	"queue.driver":                                "memory",
	"queue.workers":                               1,
	"queue.buffer":                                256,
	"queue.redis.queue":                           "agentica:intents",
	"queue.redis.block_wait_seconds":              5,
	"queue.rabbitmq.queue":                        "agentica.intents",
	"queue.rabbitmq.prefetch":                     1,
	"queue.rabbitmq.durable":                      true,
	"metrics.enabled":                             true,
	"metrics.path":                                "/metrics",
}

// Load 读取配置文件（YAML/JSON，可为空）并叠加默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 补齐依赖其它字段的默认值。
func (c *Config) applyDefaults() {
	if len(c.Web3.Networks) == 0 {
		c.Web3.Networks = []NetworkConfig{{
			Name:          "base-sepolia",
			ChainID:       84532,
			ExplorerTxURL: "https://sepolia.basescan.org/tx/%s",
		}}
	}
	if c.WalletService.Network == "" {
		c.WalletService.Network = c.Web3.DefaultNetwork
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}
}

// Validate 检查枚举类配置项。
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "mysql":
		if c.Storage.MySQL.DSN == "" {
			errs = append(errs, errors.New("storage.mysql.dsn 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver))
	}
	switch c.Dispatch.RoomLock {
	case "none", "memory":
	case "redis":
		if c.Dispatch.Redis.Address == "" {
			errs = append(errs, errors.New("dispatch.redis.address 不能为空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的房间锁模式: %s", c.Dispatch.RoomLock))
	}
	switch c.Saga.FailurePolicy {
	case "fail_fast", "compensate":
	default:
		errs = append(errs, fmt.Errorf("未知的失败策略: %s", c.Saga.FailurePolicy))
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		errs = append(errs, fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver))
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, errors.New("启用鉴权时必须配置 auth.api_keys"))
	}
	return errors.Join(errs...)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func firstNonEmpty(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
