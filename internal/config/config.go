package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig          `mapstructure:"database"` // PostgreSQL配置
	Sync     SyncConfig              `mapstructure:"sync"`     // 定时调度配置
	Pipeline PipelineConfig          `mapstructure:"pipeline"` // 流水线参数
	Oracle   OracleConfig            `mapstructure:"oracle"`   // 语义判定服务
	Sources  map[string]SourceConfig `mapstructure:"sources"`  // 候选事件来源（file/http）
	S3       S3Config                `mapstructure:"s3"`       // 原始批次归档
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL 形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogSQL          bool          `mapstructure:"log_sql"`           // 是否输出SQL日志
}

// SyncConfig 定时调度配置
type SyncConfig struct {
	Cron           string   `mapstructure:"cron"`            // 全局调度Cron表达式，空则不启用
	EnabledSources []string `mapstructure:"enabled_sources"` // 定时拉取的来源列表
}

// PipelineConfig 流水线参数
type PipelineConfig struct {
	Timezone         string `mapstructure:"timezone"`          // “今天”的判定时区
	DescriptionLimit int    `mapstructure:"description_limit"` // 描述截断长度（字符）
}

// OracleConfig 语义判定服务（Anthropic Messages API）
type OracleConfig struct {
	APIKey    string `mapstructure:"api_key"`    // 为空则禁用，各阶段按各自失败策略处理
	Model     string `mapstructure:"model"`      // 模型名称
	BaseURL   string `mapstructure:"base_url"`   // 可选，自定义网关
	Timeout   int    `mapstructure:"timeout"`    // 单次请求超时（秒）
	MaxTokens int    `mapstructure:"max_tokens"` // 最大输出 token
	Proxy     string `mapstructure:"proxy"`      // 代理地址
}

// SourceConfig 单个候选事件来源的配置
type SourceConfig struct {
	Type      string `mapstructure:"type"`       // file / http
	Path      string `mapstructure:"path"`       // file：批次 JSON 文件路径
	BaseURL   string `mapstructure:"base_url"`   // http：抽取服务地址
	AuthToken string `mapstructure:"auth_token"` // http：Bearer Token
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	Proxy     string `mapstructure:"proxy"`      // 代理地址
}

// S3Config 原始批次归档（S3 兼容存储），Bucket 为空则不归档
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("pipeline.timezone", "Europe/Berlin")
	v.SetDefault("pipeline.description_limit", 200)
	v.SetDefault("oracle.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("oracle.timeout", 120)
	v.SetDefault("oracle.max_tokens", 8192)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_PROXY"); v != "" {
		cfg.Oracle.Proxy = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	// 来源 token：SOURCE_<NAME>_TOKEN
	for name, src := range cfg.Sources {
		if v := os.Getenv("SOURCE_" + strings.ToUpper(name) + "_TOKEN"); v != "" {
			src.AuthToken = v
			cfg.Sources[name] = src
		}
	}
}

// Location 解析流水线时区，非法时回退 UTC
func (p PipelineConfig) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
