package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	defaultTTL   = 30 * time.Second
	retryInitial = 10 * time.Millisecond
	retryMax     = 250 * time.Millisecond
)

// RedisLocker is a Locker shared by every process using the same Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker constructs a RedisLocker. The TTL bounds how long a crashed holder blocks others.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis locker: nil client")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}, nil
}

// Lock polls SETNX with backoff until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	token := uuid.NewString()
	wait := retryInitial
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				metrics.ObserveLockWait(metrics.ResultError, time.Since(start))
				return nil, fees.Conflict("member state %s is locked by another operation", key)
			}
			metrics.ObserveLockWait(metrics.ResultError, time.Since(start))
			return nil, fmt.Errorf("redis locker: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.ObserveLockWait(metrics.ResultError, time.Since(start))
			return nil, fees.Conflict("member state %s is locked by another operation", key)
		case <-timer.C:
		}
		wait *= 2
		if wait > retryMax {
			wait = retryMax
		}
	}
	metrics.ObserveLockWait(metrics.ResultSuccess, time.Since(start))

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("redis lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
