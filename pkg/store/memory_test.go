package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetAbsent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	snap, err := m.Get(ctx, "/setsnap/marketOverview/byDate/2026-03-16")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.Nil(t, snap.Value())

	m.Set("/setsnap/marketOverview/byDate/2026-03-16", json.RawMessage(`{"data":{"index":1400.5}}`))

	snap, err = m.Get(ctx, "/setsnap/marketOverview/byDate/2026-03-16")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.JSONEq(t, `{"data":{"index":1400.5}}`, string(snap.Value()))
}

func TestMemoryStore_ScriptedErrorClassifiedAtBoundary(t *testing.T) {
	m := NewMemoryStore()
	m.FailWith("/p1", errors.New("permission denied"))
	m.FailWith("/p2", errors.New("i/o timeout"))

	_, err := m.Get(context.Background(), "/p1")
	assert.True(t, IsPermissionDenied(err))

	_, err = m.Get(context.Background(), "/p2")
	assert.True(t, IsTransient(err))
}

func TestMemoryStore_CallRecording(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.Get(ctx, "/a")
	m.Get(ctx, "/b")
	m.Get(ctx, "/a")

	assert.Equal(t, []string{"/a", "/b", "/a"}, m.Calls())
	assert.Equal(t, 2, m.CallCount("/a"))

	m.ResetCalls()
	assert.Empty(t, m.Calls())
}

func TestBreakerStore_TripsOnConsecutiveTransientFailures(t *testing.T) {
	m := NewMemoryStore()
	m.FailWith("/p", errors.New("connection refused"))

	cfg := DefaultBreakerConfig()
	cfg.ReadyToTrip = 3
	b := NewBreakerStore(m, &cfg)

	for i := 0; i < 3; i++ {
		_, err := b.Get(context.Background(), "/p")
		assert.Error(t, err)
	}

	assert.False(t, b.IsHealthy())

	// 熔断打开后直接快速失败，不再触达底层存储
	before := m.CallCount("/p")
	_, err := b.Get(context.Background(), "/p")
	assert.True(t, IsTransient(err))
	assert.Equal(t, before, m.CallCount("/p"))
}

func TestBreakerStore_PermissionFailuresDoNotTrip(t *testing.T) {
	m := NewMemoryStore()
	m.FailWith("/restricted", errors.New("permission denied"))

	cfg := DefaultBreakerConfig()
	cfg.ReadyToTrip = 2
	b := NewBreakerStore(m, &cfg)

	for i := 0; i < 10; i++ {
		_, err := b.Get(context.Background(), "/restricted")
		assert.True(t, IsPermissionDenied(err))
	}

	// 权限拒绝不计入失败，熔断器保持关闭
	assert.True(t, b.IsHealthy())
}

func TestThrottledStore_PassThrough(t *testing.T) {
	m := NewMemoryStore()
	m.Set("/p", json.RawMessage(`{"ok":true}`))

	ts := NewThrottledStore(m, &ThrottleConfig{MinInterval: 0, Enabled: true})
	snap, err := ts.Get(context.Background(), "/p")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
}
