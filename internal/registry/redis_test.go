package registry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLookup(t *testing.T) {
	mr := miniredis.RunT(t)

	reg, err := NewRedis(RedisConfig{Addr: mr.Addr(), KeyPrefix: "pickup:logsecret:"})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, mr.Set("pickup:logsecret:SOME_SECRET", "match-42"))

	ctx := context.Background()

	matchID, err := reg.LookupMatchBySecret(ctx, "SOME_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "match-42", matchID)

	_, err = reg.LookupMatchBySecret(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisLookupAfterMatchEnds(t *testing.T) {
	mr := miniredis.RunT(t)

	reg, err := NewRedis(RedisConfig{Addr: mr.Addr(), KeyPrefix: "pickup:logsecret:"})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, mr.Set("pickup:logsecret:SOME_SECRET", "match-42"))
	mr.Del("pickup:logsecret:SOME_SECRET")

	// Key deletion by the coordinator must be visible immediately.
	_, err = reg.LookupMatchBySecret(context.Background(), "SOME_SECRET")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisLookupEmptyValue(t *testing.T) {
	mr := miniredis.RunT(t)

	reg, err := NewRedis(RedisConfig{Addr: mr.Addr(), KeyPrefix: "pickup:logsecret:"})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, mr.Set("pickup:logsecret:SOME_SECRET", ""))

	_, err = reg.LookupMatchBySecret(context.Background(), "SOME_SECRET")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
