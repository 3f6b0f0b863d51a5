package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.Equal(t, time.Hour, cfg.Fetcher.MaxAge)
	assert.Equal(t, 10, cfg.Fetcher.ChunkSize)
	assert.Equal(t, "release", cfg.Server.Mode)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"Redis 地址为空", func(c *Config) { c.Store.RedisAddr = "" }, "redis_addr"},
		{"超时非正", func(c *Config) { c.Store.Timeout = 0 }, "timeout"},
		{"节流间隔为负", func(c *Config) { c.Store.MinInterval = -time.Second }, "min_interval"},
		{"熔断阈值为零", func(c *Config) { c.Store.BreakerTrips = 0 }, "breaker_trips"},
		{"新鲜度上限非正", func(c *Config) { c.Fetcher.MaxAge = 0 }, "max_age"},
		{"分块大小非正", func(c *Config) { c.Fetcher.ChunkSize = 0 }, "chunk_size"},
		{"回溯上限非正", func(c *Config) { c.Fetcher.MaxDaysBack = -1 }, "max_days_back"},
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"非法运行模式", func(c *Config) { c.Server.Mode = "production" }, "mode"},
		{"归档调度为空", func(c *Config) { c.Archiver.Schedule = "" }, "schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestStoreConfigConversions(t *testing.T) {
	cfg := Default()
	cfg.Store.RedisAddr = "redis:6380"
	cfg.Store.RedisPassword = "secret"
	cfg.Store.RedisDB = 2
	cfg.Store.BreakerOpen = time.Minute
	cfg.Store.BreakerTrips = 3

	rc := cfg.RedisConfig()
	assert.Equal(t, "redis:6380", rc.Addr)
	assert.Equal(t, "secret", rc.Password)
	assert.Equal(t, 2, rc.DB)

	bc := cfg.BreakerConfig()
	assert.Equal(t, time.Minute, bc.Timeout)
	assert.Equal(t, uint32(3), bc.ReadyToTrip)
	assert.True(t, bc.Enabled)

	tc := cfg.ThrottleConfig()
	assert.True(t, tc.Enabled)
	assert.Equal(t, cfg.Store.MinInterval, tc.MinInterval)
}

func TestThrottleConfig_DisabledWhenZeroInterval(t *testing.T) {
	cfg := Default()
	cfg.Store.MinInterval = 0

	tc := cfg.ThrottleConfig()
	assert.False(t, tc.Enabled)
}
