package adapter

import (
	"context"
	"time"
)

// Locker is a distributed mutex keyed by string.
type Locker interface {
	// TryLock gives up quickly when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	// Lock keeps polling for up to wait before returning domain.ErrLockNotAcquired.
	Lock(ctx context.Context, key string, ttl, wait time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
