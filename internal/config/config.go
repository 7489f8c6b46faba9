package config

import (
	"fmt"
	"time"

	"marking_backend/internal/grading"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Marking   MarkingConfig   `mapstructure:"marking"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
	// 登录后按评分人计数，批量打分接口单独限流
	MarkerMaxRequests int `mapstructure:"marker_max_requests"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	SampleRatio       float64 `mapstructure:"sample_ratio"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string `mapstructure:"channel"` // 成绩事件发布频道

	PoolSize           int `mapstructure:"pool_size"`
	MinIdleConns       int `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds"`
}

// LogConfig 日志级别支持热更新，其余项重启生效
type LogConfig struct {
	Level      string `mapstructure:"level"` // 为空时 debug 模式用 debug，否则 info
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// MarkingConfig 多评分人评阅相关配置
type MarkingConfig struct {
	WorkflowStates     []string `mapstructure:"workflow_states"` // 按流程先后排列
	DefaultMethod      string   `mapstructure:"default_method"`
	DefaultRounding    string   `mapstructure:"default_rounding"`
	DefaultMarkerCount int      `mapstructure:"default_marker_count"`
	ProgressStaleHours int      `mapstructure:"progress_stale_hours"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("redis.channel", "marking:events")
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.dial_timeout_seconds", 5)
	viper.SetDefault("log.file", "logs/marking.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.console", true)
	viper.SetDefault("tracing.sample_ratio", 1.0)
	viper.SetDefault("marking.workflow_states", grading.DefaultWorkflowStates())
	viper.SetDefault("marking.default_method", string(grading.MethodManual))
	viper.SetDefault("marking.default_rounding", string(grading.RoundNone))
	viper.SetDefault("marking.default_marker_count", 1)
	viper.SetDefault("marking.progress_stale_hours", 24)
	viper.SetDefault("rate_limit.max_requests", 6000)
	viper.SetDefault("rate_limit.window_minutes", 1)
	viper.SetDefault("rate_limit.marker_max_requests", 600)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MARKING")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if err := cfg.Marking.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 评阅配置错误在启动时直接返回，不做静默兜底
func (m *MarkingConfig) Validate() error {
	if _, err := grading.NewProgression(m.WorkflowStates); err != nil {
		return err
	}
	if _, err := grading.NewAggregator(m.DefaultMethod, m.DefaultRounding); err != nil {
		return fmt.Errorf("marking.default_method/default_rounding: %w", err)
	}
	if m.DefaultMarkerCount < 1 {
		return fmt.Errorf("marking.default_marker_count must be at least 1, got %d", m.DefaultMarkerCount)
	}
	return nil
}

func (m *MarkingConfig) Progression() (*grading.Progression, error) {
	return grading.NewProgression(m.WorkflowStates)
}
