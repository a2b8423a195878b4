package lock

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/cheti/core"
)

const retryInterval = 250 * time.Millisecond

// RedisLocker holds locks in Redis so that they are shared by all API and admin processes.
type RedisLocker struct {
	client *redislock.Client
	log    core.Logger
}

// NewRedisClient connects to the configured Redis server.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisLocker(rdb redis.UniversalClient, logger core.Logger) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), log: logger}
}

// Obtain retries until the lock is free, ctx is done or ttl has elapsed.
// The lock expires after ttl unless refreshed; it is refreshed every ttl/2 until released.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrNotObtained, "waited %s for %s", ttl, key)
		}
		return nil, errors.Wrap(err, "obtaining redis lock")
	}

	fields := map[string]interface{}{"key": key, "ttl": ttl.String()}
	interval := ttl / 2
	if interval <= 0 {
		interval = retryInterval
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, interval, func() error {
			rctx, rcancel := context.WithTimeout(context.Background(), interval)
			defer rcancel()
			return lk.Refresh(rctx, ttl, nil)
		}, func(err error) {
			l.log.Error("redis lock lost while held", err, fields)
		})
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			err := lk.Release(context.Background())
			switch {
			case err == nil:
			case errors.Is(err, redislock.ErrLockNotHeld):
				l.log.Warn("redis lock expired before release", err, fields)
			default:
				l.log.Warn("releasing redis lock", err, fields)
			}
		})
	}, nil
}

// keepAlive calls refresh every interval until stop is closed.
// It returns after the first failed refresh, reporting the error to lost.
func keepAlive(stop <-chan struct{}, interval time.Duration, refresh func() error, lost func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := refresh(); err != nil {
				lost(err)
				return
			}
		}
	}
}
