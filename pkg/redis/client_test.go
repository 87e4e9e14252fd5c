package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)

	return mr, client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
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
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, "test", zap.NewNop())

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
			}
		})
	}
}

func TestClient_GetSet(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	err := client.Set(ctx, "staging:poll:p1:results", `{"total_votes":3}`, time.Minute)
	require.NoError(t, err)

	val, err := client.Get(ctx, "staging:poll:p1:results")
	require.NoError(t, err)
	assert.Equal(t, `{"total_votes":3}`, val)

	// TTL was applied.
	assert.Greater(t, mr.TTL("staging:poll:p1:results"), time.Duration(0))
}

func TestClient_GetMissingKey(t *testing.T) {
	_, client := setupTestRedis(t)

	_, err := client.Get(context.Background(), "staging:poll:missing")
	assert.Error(t, err)
}

func TestClient_SetNX(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "staging:poll:p1:share", "token", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "staging:poll:p1:share", "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Delete(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("staging:poll:p1:results", "x")
	mr.Set("staging:poll:p2:results", "y")

	err := client.Delete(ctx, "staging:poll:p1:results", "staging:poll:p2:results")
	require.NoError(t, err)

	n, err := client.Exists(ctx, "staging:poll:p1:results", "staging:poll:p2:results")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Deleting a non-existent key is not an error.
	assert.NoError(t, client.Delete(ctx, "staging:poll:missing"))
}

func TestClient_Health(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	assert.NoError(t, client.Health(ctx))

	mr.Close()
	assert.Error(t, client.Health(ctx))
}

func TestKeyBuilder(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantPrefix  string
	}{
		{name: "production", environment: "production", wantPrefix: "prod"},
		{name: "development", environment: "development", wantPrefix: "staging"},
		{name: "staging", environment: "staging", wantPrefix: "staging"},
		{name: "unknown defaults to prod", environment: "", wantPrefix: "prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			assert.Equal(t, tt.wantPrefix, kb.GetPrefix())
			assert.Equal(t, tt.wantPrefix+":poll:p1:results", kb.KeyPollResults("p1"))
		})
	}
}
