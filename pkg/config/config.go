package config

import (
	"errors"
	"time"

	"setpulse/pkg/store"
)

// Config 主配置结构
type Config struct {
	// 存储配置
	Store StoreConfig `json:"store"`

	// 读取层配置
	Fetcher FetcherConfig `json:"fetcher"`

	// API 服务配置
	Server ServerConfig `json:"server"`

	// 归档任务配置
	Archiver ArchiverConfig `json:"archiver"`

	// 日志配置
	Logger LoggerConfig `json:"logger"`
}

// StoreConfig 键值存储及其装饰层配置
type StoreConfig struct {
	RedisAddr     string        `json:"redis_addr"`     // Redis 地址
	RedisPassword string        `json:"redis_password"` // Redis 密码
	RedisDB       int           `json:"redis_db"`       // Redis 数据库编号
	Timeout       time.Duration `json:"timeout"`        // 单次读取超时
	MinInterval   time.Duration `json:"min_interval"`   // 节流最小请求间隔
	BreakerOpen   time.Duration `json:"breaker_open"`   // 熔断器打开持续时间
	BreakerTrips  uint32        `json:"breaker_trips"`  // 触发熔断的连续失败次数
}

// FetcherConfig 弹性读取与历史查询配置
type FetcherConfig struct {
	MaxAge      time.Duration `json:"max_age"`       // 快照新鲜度上限
	ChunkSize   int           `json:"chunk_size"`    // 历史批量查询分块大小
	MaxDaysBack int           `json:"max_days_back"` // 最新交易日探测回溯上限
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Port int    `json:"port"` // 监听端口
	Mode string `json:"mode"` // gin 运行模式 (debug, release, test)
}

// ArchiverConfig 收盘归档任务配置
type ArchiverConfig struct {
	Schedule     string `json:"schedule"`      // cron 表达式（UTC+7）
	InfluxURL    string `json:"influx_url"`    // InfluxDB 地址
	InfluxToken  string `json:"influx_token"`  // InfluxDB 令牌
	InfluxOrg    string `json:"influx_org"`    // InfluxDB 组织
	InfluxBucket string `json:"influx_bucket"` // InfluxDB 存储桶
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `json:"level"`  // 日志级别 (debug, info, warn, error)
	Format string `json:"format"` // 输出格式 (json, text)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			RedisAddr:    "localhost:6379",
			RedisDB:      0,
			Timeout:      10 * time.Second,
			MinInterval:  50 * time.Millisecond,
			BreakerOpen:  30 * time.Second,
			BreakerTrips: 5,
		},
		Fetcher: FetcherConfig{
			MaxAge:      time.Hour,
			ChunkSize:   10,
			MaxDaysBack: 7,
		},
		Server: ServerConfig{
			Port: 8080,
			Mode: "release",
		},
		Archiver: ArchiverConfig{
			// 周一到周五 17:00（UTC+7），收盘后半小时
			Schedule:     "0 17 * * 1-5",
			InfluxURL:    "http://localhost:8086",
			InfluxOrg:    "setpulse",
			InfluxBucket: "market_daily",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Store.RedisAddr == "" {
		return errors.New("store redis_addr cannot be empty")
	}

	if c.Store.Timeout <= 0 {
		return errors.New("store timeout must be positive")
	}

	if c.Store.MinInterval < 0 {
		return errors.New("store min_interval cannot be negative")
	}

	if c.Store.BreakerTrips == 0 {
		return errors.New("store breaker_trips must be positive")
	}

	if c.Fetcher.MaxAge <= 0 {
		return errors.New("fetcher max_age must be positive")
	}

	if c.Fetcher.ChunkSize <= 0 {
		return errors.New("fetcher chunk_size must be positive")
	}

	if c.Fetcher.MaxDaysBack <= 0 {
		return errors.New("fetcher max_days_back must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be in range 1-65535")
	}

	if c.Server.Mode != "debug" && c.Server.Mode != "release" && c.Server.Mode != "test" {
		return errors.New("server mode must be one of debug, release, test")
	}

	if c.Archiver.Schedule == "" {
		return errors.New("archiver schedule cannot be empty")
	}

	return nil
}

// RedisConfig 转换为存储层的 Redis 配置
func (c *Config) RedisConfig() store.RedisConfig {
	return store.RedisConfig{
		Addr:     c.Store.RedisAddr,
		Password: c.Store.RedisPassword,
		DB:       c.Store.RedisDB,
		Timeout:  c.Store.Timeout,
	}
}

// BreakerConfig 转换为存储层的熔断器配置
func (c *Config) BreakerConfig() store.BreakerConfig {
	cfg := store.DefaultBreakerConfig()
	cfg.Timeout = c.Store.BreakerOpen
	cfg.ReadyToTrip = c.Store.BreakerTrips
	return cfg
}

// ThrottleConfig 转换为存储层的节流配置
func (c *Config) ThrottleConfig() store.ThrottleConfig {
	return store.ThrottleConfig{
		MinInterval: c.Store.MinInterval,
		Enabled:     c.Store.MinInterval > 0,
	}
}
