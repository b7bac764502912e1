// Package lock provides single-writer-per-key locks.
//
// Keyed is an in-process lock used by a single server instance. Redis
// backs the same interface with bsm/redislock when several instances
// share one database.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotObtained is returned when a lock could not be acquired before
// the context was done.
var ErrNotObtained = errors.New("lock: not obtained")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks per key.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

// =============================================================================
// KEYED - In-process lock per key
// =============================================================================

// Keyed serializes holders of the same key. Different keys never contend.
// Entries are dropped once no goroutine holds or waits on them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

func (k *Keyed) Obtain(ctx context.Context, key string) (Lock, error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &keyedLock{parent: k, key: key, slot: s}, nil
	case <-ctx.Done():
		k.drop(key, s)
		return nil, errors.Join(ErrNotObtained, ctx.Err())
	}
}

func (k *Keyed) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

type keyedLock struct {
	parent *Keyed
	key    string
	slot   *slot
	once   sync.Once
}

func (l *keyedLock) Release(context.Context) error {
	l.once.Do(func() {
		<-l.slot.ch
		l.parent.drop(l.key, l.slot)
	})
	return nil
}
