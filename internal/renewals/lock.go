package renewals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another worker already holds the renewal lock.
var ErrLockBusy = errors.New("renewal lock busy")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive per-subscription locks.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// RedsyncLocker implements Locker with a single-attempt redsync mutex.
type RedsyncLocker struct {
	rs *redsync.Redsync
}

// NewRedsyncLocker builds a locker on top of a go-redis client.
func NewRedsyncLocker(client redis.UniversalClient) (*RedsyncLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for renewal lock")
	}
	return &RedsyncLocker{rs: redsync.New(goredis.NewPool(client))}, nil
}

func (l *RedsyncLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	mutex := l.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, ErrLockBusy
		}
		return nil, fmt.Errorf("acquire renewal lock: %w", err)
	}
	return func(ctx context.Context) error {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			return fmt.Errorf("release renewal lock: %w", err)
		}
		return nil
	}, nil
}
