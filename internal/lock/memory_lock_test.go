package lock

import (
	"context"
	"testing"
	"time"
)

// TestMemoryLockerMutualExclusion verifies a held key cannot be
// acquired again until released.
func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := CycleKey("user-1", "BTCUSD", 27)

	lease, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); err != ErrNotAcquired {
		t.Errorf("Expected ErrNotAcquired on second acquire, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); err != nil {
		t.Errorf("Expected acquire to succeed after release, got %v", err)
	}
}

// TestMemoryLockerExpiry verifies an unreleased lease frees the key
// after its TTL.
func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := CycleKey("user-1", "ETHUSD", 3136)

	if _, err := l.Acquire(ctx, key, 10*time.Millisecond); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := l.Acquire(ctx, key, time.Minute); err != nil {
		t.Errorf("Expected acquire to succeed after expiry, got %v", err)
	}
}

// TestMemoryLockerDistinctKeys verifies independent keys do not block
// each other.
func TestMemoryLockerDistinctKeys(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	if _, err := l.Acquire(ctx, CycleKey("user-1", "BTCUSD", 27), time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := l.Acquire(ctx, CycleKey("user-1", "ETHUSD", 3136), time.Minute); err != nil {
		t.Errorf("Expected distinct key to acquire, got %v", err)
	}
	if _, err := l.Acquire(ctx, CycleKey("user-2", "BTCUSD", 27), time.Minute); err != nil {
		t.Errorf("Expected distinct user key to acquire, got %v", err)
	}
}

// TestLeaseTokensUnique verifies back-to-back acquisitions of the same
// key get distinct fencing tokens. A reused token would let a stale
// holder release its successor's lease.
func TestLeaseTokensUnique(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		lease, err := l.Acquire(ctx, "key", time.Minute)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		token := l.leases["key"].token
		if seen[token] {
			t.Fatalf("Token %q reused on acquisition %d", token, i)
		}
		seen[token] = true
		if err := lease.Release(ctx); err != nil {
			t.Fatalf("Release %d failed: %v", i, err)
		}
	}
}

// TestStaleLeaseReleaseKeepsNewOwner verifies a lease released after
// expiry does not evict the next holder.
func TestStaleLeaseReleaseKeepsNewOwner(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()
	key := CycleKey("user-1", "BTCUSD", 27)

	stale, err := l.Acquire(ctx, key, time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := l.Acquire(ctx, key, time.Minute); err != nil {
		t.Fatalf("Re-acquire after expiry failed: %v", err)
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("Stale release failed: %v", err)
	}

	// The new owner's lease must still hold the key
	if _, err := l.Acquire(ctx, key, time.Minute); err != ErrNotAcquired {
		t.Errorf("Expected key still held by new owner, got %v", err)
	}
}
