package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock keeps two cron replicas from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// MutexLock implements Lock with a redsync mutex tried once per cycle.
type MutexLock struct {
	mutex *redsync.Mutex
}

func NewMutexLock(client redis.UniversalClient, key string, ttl time.Duration) (*MutexLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	rs := redsync.New(goredis.NewPool(client))
	return &MutexLock{mutex: rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))}, nil
}

// Acquire reports false without error when another instance holds the lock.
func (l *MutexLock) Acquire(ctx context.Context) (bool, error) {
	if err := l.mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return false, nil
		}
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	return true, nil
}

// Release is a no-op when the lock already expired.
func (l *MutexLock) Release(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrLockAlreadyExpired) {
			return nil
		}
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
