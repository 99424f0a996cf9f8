package app_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/canasta/internal/app"
	"github.com/noah-isme/canasta/internal/config"
)

func TestOpenWithoutDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisURL: "redis://" + mr.Addr() + "/0"}

	deps, err := app.Open(context.Background(), cfg, "canasta-test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)
	require.NotNil(t, deps.Redis)
	require.Nil(t, deps.DB)
	require.NoError(t, deps.Redis.Set(context.Background(), "k", "v", 0).Err())
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	_, err := app.OpenRedis(context.Background(), "not-a-url", false, zerolog.Nop())
	require.ErrorContains(t, err, "parse redis url")
}

func TestQueueRedisOpt(t *testing.T) {
	opt, err := app.QueueRedisOpt("redis://localhost:6379/2")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "localhost:6379", client.Addr)
	require.Equal(t, 2, client.DB)
}
