// Package lock provides lease-based mutual exclusion for trading cycles.
// A lease self-expires after its TTL, so a crashed worker can never hold
// a key forever; explicit release just makes the next cycle faster.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired signals that another execution holds the key. It is an
// expected no-op condition for the caller, not a failure.
var ErrNotAcquired = errors.New("lock held by another execution")

// Lease is a held lock. Release is safe to call once per lease; after
// the TTL passes the lease is gone whether or not Release was called.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker acquires leases. Implementations must make acquisition a single
// atomic set-if-absent-with-expiry operation.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// CycleKey builds the lock key for one (user, symbol, product) pairing
func CycleKey(userID, symbol string, productID int) string {
	return fmt.Sprintf("trading:cycle:%s:%s:%d", userID, symbol, productID)
}
