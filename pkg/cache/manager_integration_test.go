//go:build integration

package cache

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a throwaway Redis for the integration suite.
func setupRedisContainer(t *testing.T) *redis.Client {
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
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})

	return client
}

func TestIntegration_PageRoundTrip(t *testing.T) {
	rdb := setupRedisContainer(t)
	m := NewManager(rdb)
	ctx := context.Background()

	if err := m.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	key := CacheKey{
		Endpoint:    "data.cms.gov/data-api/v1/dataset/abc/data",
		QueryParams: url.Values{"size": {"5000"}, "offset": {"0"}},
	}
	entry := &CacheEntry{
		Data:     []byte(`[{"Brnd_Name":"Lipitor","Gnrc_Name":"Atorvastatin Calcium"}]`),
		Strategy: "size_offset",
		Expires:  time.Now().Add(2 * time.Second),
		CachedAt: time.Now(),
	}
	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}

	// Redis expiry follows the entry, not a fixed default.
	ttl, err := rdb.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("redis TTL = %v, want (0, 2s]", ttl)
	}

	time.Sleep(2500 * time.Millisecond)

	if _, err := m.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrCacheMiss", err)
	}
}

func TestIntegration_PurgeManyPages(t *testing.T) {
	m := NewManager(setupRedisContainer(t))
	ctx := context.Background()

	const pages = 1200
	endpoint := "data.cms.gov/data-api/v1/dataset/abc/data"
	for i := 0; i < pages; i++ {
		key := CacheKey{
			Endpoint:    endpoint,
			QueryParams: url.Values{"size": {"10"}, "offset": {strconv.Itoa(i * 10)}},
		}
		entry := &CacheEntry{Data: []byte(`[]`), Expires: time.Now().Add(time.Minute)}
		if err := m.Set(ctx, key, entry); err != nil {
			t.Fatalf("Set(%d) error = %v", i, err)
		}
	}

	n, err := m.Purge(ctx, endpoint)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != pages {
		t.Errorf("Purge() deleted %d keys, want %d", n, pages)
	}
}
