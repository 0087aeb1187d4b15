package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := NewClient("redis://"+mr.Addr(), "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{
			name:        "Reachable server",
			url:         "redis://" + mr.Addr(),
			expectError: false,
		},
		{
			name:        "Invalid URL",
			url:         "invalid://url",
			expectError: true,
		},
		{
			name:        "Empty URL",
			url:         "",
			expectError: true,
		},
		{
			name:        "Nothing listening",
			url:         "redis://127.0.0.1:1/0",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "test", nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client.KeyBuilder)
			assert.NoError(t, client.Close())
		})
	}
}

func TestClient_GetSet(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Minute))

	val, err := client.Get(ctx, "test:key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", val)
	assert.Greater(t, mr.TTL("test:key1"), time.Duration(0))

	_, err = client.Get(ctx, "test:missing")
	assert.True(t, errors.Is(err, Nil))
}

func TestClient_GetDel(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:once", "payload"))

	val, err := client.GetDel(ctx, "test:once")
	require.NoError(t, err)
	assert.Equal(t, "payload", val)
	assert.False(t, mr.Exists("test:once"))

	_, err = client.GetDel(ctx, "test:once")
	assert.ErrorIs(t, err, Nil)
}

func TestClient_Delete(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:key1", "value1"))
	require.NoError(t, mr.Set("test:key2", "value2"))

	require.NoError(t, client.Delete(ctx, "test:key1", "test:key2", "test:absent"))
	assert.False(t, mr.Exists("test:key1"))
	assert.False(t, mr.Exists("test:key2"))
}

func TestClient_TTL(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:ttl", "v", TTLLoginState))

	ttl, err := client.TTL(ctx, "test:ttl")
	require.NoError(t, err)
	assert.InDelta(t, TTLLoginState.Seconds(), ttl.Seconds(), 1)
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, client.Health(ctx))

	mr.Close()
	assert.Error(t, client.Health(ctx))
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "short:key", prefixForLog("short:key"))
	long := "prod:auth:state:0123456789abcdef0123456789abcdef"
	assert.Equal(t, long[:24]+"…", prefixForLog(long))
}
