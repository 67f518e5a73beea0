package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env       string          `mapstructure:"env"` // 环境: development, production
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	AI        AIConfig        `mapstructure:"ai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"` // 字节
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// AuthConfig 身份认证配置
type AuthConfig struct {
	Mode   string `mapstructure:"mode"`   // keycloak, header
	Issuer string `mapstructure:"issuer"` // Keycloak realm 地址
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
	File   string `mapstructure:"file"`
}

// FanoutConfig 实时推送配置
type FanoutConfig struct {
	QueueSize   int    `mapstructure:"queue_size"`
	NATSURL     string `mapstructure:"nats_url"` // 为空时只在本实例内推送
	NATSSubject string `mapstructure:"nats_subject"`
}

// AIConfig 预标注配置
type AIConfig struct {
	Provider      string        `mapstructure:"provider"` // mock, rekognition
	MinConfidence float64       `mapstructure:"min_confidence"`
	MaxLabels     int32         `mapstructure:"max_labels"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Bucket        string `mapstructure:"bucket"` // 为空时禁用上传
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"` // S3 兼容服务地址,如 MinIO
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP HTTP 地址,如 localhost:4318
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.annotara")
		// 配置文件不存在时使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量,如 APP_DATABASE_DRIVER
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return unmarshal(v)
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Auth.Mode {
	case "keycloak":
		if c.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer is required in keycloak mode")
		}
	case "header":
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Auth.Mode)
	}
	switch c.AI.Provider {
	case "mock":
	case "rekognition":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the rekognition provider")
		}
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AI.Provider)
	}
	return nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Addr 服务监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	v.SetDefault("env", env)

	// 服务器
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_size", 50<<20)

	// 数据库
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "annotara")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "annotara.db")

	// 连接池(根据环境设置默认值)
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 300)
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600)
		v.SetDefault("database.conn_max_idle_time", 600)
	}

	// 身份认证
	if env == "production" {
		v.SetDefault("auth.mode", "keycloak")
	} else {
		v.SetDefault("auth.mode", "header")
	}
	v.SetDefault("auth.issuer", "")

	// CORS
	v.SetDefault("cors.allowed_origins", []string{"*"})

	// 日志
	if env == "production" {
		v.SetDefault("log.level", "info")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/annotara.log")

	// 实时推送
	v.SetDefault("fanout.queue_size", 1024)
	v.SetDefault("fanout.nats_url", "")
	v.SetDefault("fanout.nats_subject", "annotara.tasks.updates")

	// 预标注
	v.SetDefault("ai.provider", "mock")
	v.SetDefault("ai.min_confidence", 60)
	v.SetDefault("ai.max_labels", 10)
	v.SetDefault("ai.timeout", 15*time.Second)

	// 对象存储
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.public_base_url", "")

	// 限流
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)

	// 链路追踪
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "annotara")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
