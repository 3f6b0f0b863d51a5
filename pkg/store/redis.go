package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"setpulse/pkg/logger"
)

// RedisConfig Redis 存储配置
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" json:"addr"`
	Password string        `mapstructure:"password" json:"password"`
	DB       int           `mapstructure:"db" json:"db"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"` // 单次读取超时
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:    "localhost:6379",
		DB:      0,
		Timeout: 5 * time.Second,
	}
}

// RedisStore 基于 Redis 的 KeyValueStore 实现。
// 每个快照路径对应一个存放 JSON 文本的键。
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	log    *logrus.Entry
}

// NewRedisStore 创建 Redis 存储并验证连接
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		config: config,
		log:    logger.WithComponent("redis_store"),
	}, nil
}

// Get 实现 KeyValueStore 接口。
// redis.Nil 表示键不存在，不作为错误；其余失败在此处完成分类。
func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	val, err := s.client.Get(ctx, path).Result()
	if err != nil {
		if err == redis.Nil {
			return AbsentSnapshot(), nil
		}

		kind := Classify(err)
		s.log.WithError(err).WithField("path", path).Debug("Redis read failed")
		return nil, NewError(kind, path, err)
	}

	return NewSnapshot(json.RawMessage(val)), nil
}

// Name 实现 KeyValueStore 接口
func (s *RedisStore) Name() string {
	return "redis"
}

// IsHealthy 检查 Redis 连接状态
func (s *RedisStore) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err() == nil
}

// Close 关闭 Redis 连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Client 暴露底层客户端给健康检查端点使用
func (s *RedisStore) Client() *redis.Client {
	return s.client
}
