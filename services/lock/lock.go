// Package lock provides the batch locks used to serialize reconciliation runs of a partition.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNotObtained is returned when a lock could not be obtained before the context was done.
var ErrNotObtained = errors.New("lock not obtained")

// LocalLocker is an in-process keyed mutex. It only serializes callers of the same process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

// Obtain blocks until the key is free, ctx is done or ttl has elapsed.
func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ch := l.slot(key)
	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ErrNotObtained, ctx.Err().Error())
	case <-timer.C:
		return nil, errors.Wrapf(ErrNotObtained, "waited %s for %s", ttl, key)
	}
}
