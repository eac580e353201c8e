package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultLockTTL bounds how long a crashed worker can block the next cycle.
const defaultLockTTL = 4 * time.Minute

// Lock keeps a single cron worker sweeping orders and connect states across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Refresh extends the hold and reports false once another worker owns the lock.
	Refresh(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type ownedKeyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock stores a random owner token under key. Refresh and Release are
// compare-and-set on that token, so an expired holder never touches a lock
// another worker has since taken.
type RedisLock struct {
	client ownedKeyStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client ownedKeyStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	ok, err := l.client.ExtendOwned(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		l.owner = ""
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.client.ReleaseOwned(ctx, l.key, l.owner); err != nil {
		return err
	}
	l.owner = ""
	return nil
}
