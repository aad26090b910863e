package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/bank-ledger/internal/infra/cache"
)

func TestInMemory(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		setup   func(c *cache.InMemory[time.Time])
		wait    time.Duration
		key     string
		wantHit bool
		wantLen int
	}{
		{
			name:    "revoked session is found",
			ttl:     time.Hour,
			setup:   func(c *cache.InMemory[time.Time]) { c.Set("sess-1", time.Unix(0, 0)) },
			key:     "sess-1",
			wantHit: true,
			wantLen: 1,
		},
		{
			name:    "unknown session is a miss",
			ttl:     time.Hour,
			setup:   func(c *cache.InMemory[time.Time]) { c.Set("sess-1", time.Unix(0, 0)) },
			key:     "sess-2",
			wantLen: 1,
		},
		{
			name: "deleted entry is gone",
			ttl:  time.Hour,
			setup: func(c *cache.InMemory[time.Time]) {
				c.Set("sess-1", time.Unix(0, 0))
				c.Delete("sess-1")
			},
			key: "sess-1",
		},
		{
			name: "expired entries are swept",
			ttl:  20 * time.Millisecond,
			setup: func(c *cache.InMemory[time.Time]) {
				c.Set("sess-1", time.Unix(0, 0))
				c.Set("sess-2", time.Unix(0, 0))
			},
			wait: 150 * time.Millisecond,
			key:  "sess-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cache.New[time.Time](tt.ttl)
			defer c.Close()

			tt.setup(c)
			time.Sleep(tt.wait)

			if _, ok := c.Get(tt.key); ok != tt.wantHit {
				t.Errorf("Get(%q) hit = %v, want %v", tt.key, ok, tt.wantHit)
			}
			if n := c.Len(); n != tt.wantLen {
				t.Errorf("Len() = %d, want %d", n, tt.wantLen)
			}
		})
	}
}

func TestInMemory_ExpiredEntryMissesBeforeSweep(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	c.Close() // stop the sweeper

	c.Set("sess-1", "revoked")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("sess-1"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if n := c.Len(); n != 1 {
		t.Fatalf("Len() = %d, want 1 until swept", n)
	}
}

func TestInMemory_CloseTwice(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close()
}
