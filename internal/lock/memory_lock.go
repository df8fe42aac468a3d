package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker implements Locker in process memory. It keeps single-node
// deployments and tests working without Redis; cross-process exclusion
// requires the Redis locker.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryEntry
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryEntry)}
}

// Acquire takes the key unless an unexpired lease already holds it
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.leases[key]; ok && entry.expires.After(now) {
		return nil, ErrNotAcquired
	}

	token := uuid.NewString()
	l.leases[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (le *memoryLease) Key() string { return le.key }

func (le *memoryLease) Release(ctx context.Context) error {
	le.locker.mu.Lock()
	defer le.locker.mu.Unlock()

	if entry, ok := le.locker.leases[le.key]; ok && entry.token == le.token {
		delete(le.locker.leases, le.key)
	}
	return nil
}
