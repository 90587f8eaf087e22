package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/solacegrove/solace-backend/internal/logger"
)

// runLockKey guards the batch run across processes. Exactly one scheduler
// instance may execute a grouping run at a time.
const runLockKey = "solace:grouping:run-lock"

// RunLock is a cross-process mutual exclusion primitive for the batch run.
// Acquire reports acquired=false, without error, when another holder exists.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context), acquired bool, err error)
}

type redisRunLock struct {
	client *redis.Client
	log    *logger.Logger
	ttl    time.Duration
}

func NewRedisRunLock(client *redis.Client, baseLog *logger.Logger, ttl time.Duration) RunLock {
	return &redisRunLock{
		client: client,
		log:    baseLog.With("service", "RunLock"),
		ttl:    ttl,
	}
}

// releaseScript deletes the lease only if this process still owns it, so an
// expired-and-retaken lock is never released out from under its new holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisRunLock) Acquire(ctx context.Context) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, runLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func(rctx context.Context) {
		if _, err := releaseScript.Run(rctx, l.client, []string{runLockKey}, token).Result(); err != nil {
			// The TTL still bounds a leaked lease.
			l.log.Warn("Failed to release run lock", "error", err)
		}
	}
	return release, true, nil
}

// noopRunLock always grants the lock; used by tests and single-process runs
// without Redis.
type noopRunLock struct{}

func NewNoopRunLock() RunLock { return noopRunLock{} }

func (noopRunLock) Acquire(ctx context.Context) (func(context.Context), bool, error) {
	return func(context.Context) {}, true, nil
}
