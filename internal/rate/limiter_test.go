package rate

import (
	"testing"
	"time"
)

func TestMemoryLimiterBurstThenDeny(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow("ip:1", 3, time.Minute); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, retry := m.Allow("ip:1", 3, time.Minute)
	if ok {
		t.Fatalf("fourth request should be denied")
	}
	if retry <= 0 || retry > 20*time.Second {
		t.Fatalf("unexpected retry-after %v", retry)
	}

	if ok, _ := m.Allow("ip:2", 3, time.Minute); !ok {
		t.Fatalf("other keys have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if ok, _ := m.Allow("ip:1", 3, time.Minute); !ok {
		t.Fatalf("a token should refill after window/limit")
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 100; i++ {
		if ok, _ := m.Allow("k", 0, time.Minute); !ok {
			t.Fatalf("limit 0 disables limiting")
		}
	}
	if m.Len() != 0 {
		t.Fatalf("disabled limits should not allocate buckets")
	}
}

func TestMemoryLimiterSweepsIdleKeys(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	m.Allow("a", 1, time.Minute)
	m.Allow("b", 1, time.Minute)
	if m.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", m.Len())
	}

	now = now.Add(11 * time.Minute)
	m.Allow("c", 1, time.Minute)
	if m.Len() != 1 {
		t.Fatalf("idle buckets should be swept, have %d", m.Len())
	}
}
