package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis SETNX lock used to serialise claim requests per member.
//
// Without it, two overlapping requests from the same member both pass the
// advisory funds check before either debit commits. The atomic debit guard
// still prevents a negative balance, but the lock keeps the window small and
// the failure mode clean (the second request queues instead of racing).
//
// Acquire: SET key value NX EX. NX gives mutual exclusion, EX means a crashed
// holder cannot leave the lock stuck. Release: a Lua script that checks the
// owner value before deleting, so an expired holder cannot free someone
// else's lock.

var ErrLockFailed = errors.New("failed to acquire distributed lock")

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // owner token, verified on release
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a single non-blocking acquire.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock blocks with bounded retries until the lock is acquired.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock if this instance still owns it.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewClaimLock creates the per-member payout lock. Scoping by user keeps
// unrelated members fully concurrent; only a member's own overlapping claims
// are serialised.
func NewClaimLock(client *redis.Client, userID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("claim:lock:user:%d", userID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}
