package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setpulse/pkg/store"
)

const (
	primaryPath  = "/setsnap/marketOverview/byDate/2026-03-16"
	fallbackPath = "/setsnap/marketOverview/byDate/2026-03-15"
)

func TestFetcher_Get_Absent(t *testing.T) {
	f := New(store.NewMemoryStore())

	raw, err := f.Get(context.Background(), primaryPath)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestFetcher_Get_PermissionDeniedSwallowed(t *testing.T) {
	m := store.NewMemoryStore()
	m.FailWith(primaryPath, errors.New("permission denied"))
	f := New(m)

	raw, err := f.Get(context.Background(), primaryPath)
	assert.NoError(t, err)
	assert.Nil(t, raw)
}

func TestFetcher_Get_TransientErrorPropagatesTyped(t *testing.T) {
	m := store.NewMemoryStore()
	m.FailWith(primaryPath, errors.New("i/o timeout"))
	f := New(m)

	_, err := f.Get(context.Background(), primaryPath)
	require.Error(t, err)

	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.CodeFetchError, se.Code)
	assert.Equal(t, primaryPath, se.Path)
	assert.NotEmpty(t, se.Message)
}

func TestFetcher_GetWithFallback_PrimaryWins(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(primaryPath, json.RawMessage(`{"data":{"index":1400}}`))
	m.Set(fallbackPath, json.RawMessage(`{"data":{"index":1390}}`))
	f := New(m)

	raw := f.GetWithFallback(context.Background(), primaryPath, fallbackPath)
	assert.JSONEq(t, `{"data":{"index":1400}}`, string(raw))

	// 主路径命中时不应触达回退路径
	assert.Equal(t, 0, m.CallCount(fallbackPath))
}

func TestFetcher_GetWithFallback_EmptyObjectFallsBack(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(primaryPath, json.RawMessage(`{}`))
	m.Set(fallbackPath, json.RawMessage(`{"data":{"index":1390}}`))
	f := New(m)

	raw := f.GetWithFallback(context.Background(), primaryPath, fallbackPath)
	assert.JSONEq(t, `{"data":{"index":1390}}`, string(raw))
}

func TestFetcher_GetWithFallback_BothEmptyReturnsNil(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(primaryPath, json.RawMessage(`{}`))
	m.Set(fallbackPath, json.RawMessage(`null`))
	f := New(m)

	assert.Nil(t, f.GetWithFallback(context.Background(), primaryPath, fallbackPath))
}

func TestFetcher_GetWithFallback_PrimaryErrorThenFallback(t *testing.T) {
	m := store.NewMemoryStore()
	m.FailWith(primaryPath, errors.New("connection refused"))
	m.Set(fallbackPath, json.RawMessage(`{"data":{"index":1390}}`))
	f := New(m)

	raw := f.GetWithFallback(context.Background(), primaryPath, fallbackPath)
	assert.JSONEq(t, `{"data":{"index":1390}}`, string(raw))
}

func TestFetcher_GetWithFallback_BothFailReturnsNilNotPanic(t *testing.T) {
	m := store.NewMemoryStore()
	m.FailWith(primaryPath, errors.New("connection refused"))
	m.FailWith(fallbackPath, errors.New("i/o timeout"))
	f := New(m)

	assert.Nil(t, f.GetWithFallback(context.Background(), primaryPath, fallbackPath))
}

func TestFetcher_GetWithFallback_NoFallbackAvailable(t *testing.T) {
	m := store.NewMemoryStore()
	f := New(m)

	assert.Nil(t, f.GetWithFallback(context.Background(), primaryPath, ""))
	assert.Equal(t, 1, m.CallCount(primaryPath))
}

func TestFetcher_GetWithFallback_Sequential(t *testing.T) {
	m := store.NewMemoryStore()
	m.Set(fallbackPath, json.RawMessage(`{"data":{"index":1390}}`))
	f := New(m)

	f.GetWithFallback(context.Background(), primaryPath, fallbackPath)

	// 回退永远在主路径结束之后才发出
	assert.Equal(t, []string{primaryPath, fallbackPath}, m.Calls())
}

func TestIsMeaningful(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected bool
	}{
		{"空对象", `{}`, false},
		{"空数组", `[]`, false},
		{"null", `null`, false},
		{"空串", ``, false},
		{"空白", `   `, false},
		{"非空对象", `{"index":1400}`, true},
		{"非空数组", `[1]`, true},
		{"标量", `42`, true},
		{"带空白的空对象", ` { } `, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMeaningful(json.RawMessage(tt.raw)))
		})
	}
}
