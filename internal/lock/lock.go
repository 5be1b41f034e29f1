// Package lock serializes work on ledger accounts, either inside one process
// or across instances sharing a Redis.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be obtained in time.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding every key. Keys are taken in sorted order so
// two callers locking the same pair cannot deadlock.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// normalize sorts and deduplicates keys.
func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	ch   chan struct{}
	refs int
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocalLocker returns a Locker for a single process.
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*entry)}
}

func (l *localLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}()

	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			return err
		}
		held = append(held, k)
	}
	return fn(ctx)
}

func (l *localLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key)
		return errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (l *localLocker) release(key string) {
	l.mu.Lock()
	e := l.locks[key]
	l.mu.Unlock()
	<-e.ch
	l.unref(key)
}

func (l *localLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
