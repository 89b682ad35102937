//go:build integration

package pipeline

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/partd-savings/internal/testutil"
	"github.com/Sternrassler/partd-savings/pkg/cache"
	"github.com/Sternrassler/partd-savings/pkg/source"
)

// setupRedis starts a Redis container for the cached-run tests.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})

	return client
}

// TestIntegration_CachedRun runs the pipeline twice against the same
// Redis: the second run must not touch the source.
func TestIntegration_CachedRun(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()
	mock.SetHeader("Cache-Control", "max-age=300")

	cfg := testConfig(t, mock)
	manager := cache.NewManager(redisClient)
	cfg.Source.Cache = manager

	first, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, mock.GetRequestCount())
	assert.Zero(t, first.FetchStats.CachedPages)

	mock.Reset()

	second, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, mock.GetRequestCount())
	assert.Equal(t, 4, second.FetchStats.CachedPages)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, first.Report.SavingsRanking, second.Report.SavingsRanking)
	assert.NotEqual(t, first.RunID, second.RunID)

	// After a purge the source is hit again.
	client, err := source.New(cfg.Source)
	require.NoError(t, err)
	n, err := manager.Purge(context.Background(), client.CacheEndpoint())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mock.Reset()
	_, err = Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, mock.GetRequestCount())
}

// TestIntegration_CacheKeysFollowStrategy checks that a fallback strategy's
// pages are cached under their own parameters.
func TestIntegration_CacheKeysFollowStrategy(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()
	mock.Accept(testutil.StylePerPage)

	cfg := testConfig(t, mock)
	cfg.OutDir = ""
	cfg.Source.Cache = cache.NewManager(redisClient)

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	keys, err := redisClient.Keys(context.Background(), cache.KeyPrefix+":*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 4)
	for _, k := range keys {
		assert.Contains(t, k, "per_page=2")
	}
}
