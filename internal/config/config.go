package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSecret 未配置 HIREMOTE_SECRET 时使用的开发密钥
const DefaultSecret = "change-me"

// ==================== 配置结构 ====================

// Config 应用配置
type Config struct {
	SecretKey  string        `mapstructure:"secret_key"`
	ServerPort string        `mapstructure:"server_port"`
	GinMode    string        `mapstructure:"gin_mode"`
	LogLevel   string        `mapstructure:"log_level"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	MaxUpload  int64         `mapstructure:"max_upload_mb"`

	// 仅 HTTPS 部署时开启，否则浏览器不会回传 Cookie
	SessionSecure bool `mapstructure:"session_secure"`

	// 运行时根目录，Vercel 环境为 /tmp/hiremote
	RuntimeRoot string `mapstructure:"runtime_root"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Assistant AssistantConfig `mapstructure:"assistant"`

	// 孤儿文件清理任务 cron 表达式，空字符串表示不启动
	CleanupCron string `mapstructure:"cleanup_cron"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // local | s3
	BasePath  string `mapstructure:"base_path"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

// AssistantConfig 聊天助手配置
type AssistantConfig struct {
	Provider string        `mapstructure:"provider"` // gemini | http | 空=关闭
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled 助手是否启用
func (a AssistantConfig) Enabled() bool {
	return a.Provider != ""
}

// MaxUploadBytes 单次请求上传上限（字节）
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUpload * 1024 * 1024
}

// UsingDefaultSecret 是否仍在使用开发密钥
func (c *Config) UsingDefaultSecret() bool {
	return c.SecretKey == DefaultSecret
}

// ==================== 加载 ====================

// envBindings 配置项 -> 环境变量
var envBindings = map[string][]string{
	"secret_key":         {"HIREMOTE_SECRET"},
	"server_port":        {"SERVER_PORT"},
	"gin_mode":           {"GIN_MODE"},
	"log_level":          {"LOG_LEVEL"},
	"session_ttl":        {"SESSION_TTL"},
	"session_secure":     {"SESSION_COOKIE_SECURE"},
	"max_upload_mb":      {"MAX_UPLOAD_MB"},
	"cleanup_cron":       {"CLEANUP_CRON"},
	"database.driver":    {"PORTAL_DB_DRIVER"},
	"database.dsn":       {"PORTAL_DB_DSN"},
	"storage.provider":   {"STORAGE_PROVIDER"},
	"storage.base_path":  {"STORAGE_BASE_PATH"},
	"storage.bucket":     {"AWS_BUCKET"},
	"storage.region":     {"AWS_REGION"},
	"storage.access_key": {"AWS_ACCESS_KEY_ID"},
	"storage.secret_key": {"AWS_SECRET_ACCESS_KEY"},
	"storage.endpoint":   {"STORAGE_ENDPOINT"},
	"assistant.provider": {"ASSISTANT_PROVIDER"},
	"assistant.api_key":  {"ASSISTANT_API_KEY", "GEMINI_API_KEY"},
	"assistant.model":    {"ASSISTANT_MODEL"},
	"assistant.endpoint": {"ASSISTANT_ENDPOINT"},
	"assistant.timeout":  {"ASSISTANT_TIMEOUT"},
}

// Load 加载配置
// 优先级：环境变量 > .env 文件 > 默认值
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	runtimeRoot := "."
	if os.Getenv("VERCEL") == "1" {
		// Vercel 函数文件系统只读
		runtimeRoot = "/tmp/hiremote"
	}
	setDefaults(v, runtimeRoot)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.RuntimeRoot = runtimeRoot

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, runtimeRoot string) {
	v.SetDefault("secret_key", DefaultSecret)
	v.SetDefault("server_port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_ttl", 10*time.Hour)
	v.SetDefault("session_secure", false)
	v.SetDefault("max_upload_mb", 512)
	v.SetDefault("cleanup_cron", "0 30 3 * * *")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(runtimeRoot, "instance", "hiremote.db"))
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_path", filepath.Join(runtimeRoot, "storage", "uploads"))
	v.SetDefault("assistant.provider", "")
	v.SetDefault("assistant.timeout", 30*time.Second)
}

// normalize 校验并规范化配置
func (c *Config) normalize() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}

	c.Storage.Provider = strings.ToLower(strings.TrimSpace(c.Storage.Provider))
	if c.Storage.Provider == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_PROVIDER=s3 需要设置 AWS_BUCKET")
	}

	c.Assistant.Provider = strings.ToLower(strings.TrimSpace(c.Assistant.Provider))
	switch c.Assistant.Provider {
	case "", "gemini", "http":
	default:
		return fmt.Errorf("不支持的助手提供者: %s", c.Assistant.Provider)
	}

	if c.MaxUpload <= 0 {
		c.MaxUpload = 512
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 10 * time.Hour
	}
	return nil
}
