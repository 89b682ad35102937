package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired entry", time.Now().Add(-1 * time.Hour), true},
		{"fresh entry", time.Now().Add(1 * time.Hour), false},
		{"just expired", time.Now().Add(-1 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	expired := &CacheEntry{Expires: time.Now().Add(-time.Minute)}
	if ttl := expired.TTL(); ttl != 0 {
		t.Errorf("TTL() of expired entry = %v, want 0", ttl)
	}

	fresh := &CacheEntry{Expires: time.Now().Add(10 * time.Minute)}
	if ttl := fresh.TTL(); ttl <= 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want about 10m", ttl)
	}
}
