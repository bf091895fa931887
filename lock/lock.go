// Package lock provides keyed mutual exclusion.
//
// A Locker serializes work that shares a key, such as coverage updates of
// one company, while work on different keys proceeds in parallel. Keyed is
// the in-process implementation; package redislock provides one shared
// between processes.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned by an unlock function whose lock was already
// released or expired.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires exclusive locks by key.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done.
	// The returned function releases the lock; it must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func() error, err error)
}

// Keyed is an in-process Locker. The zero value is ready to use.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // holds one token while the lock is taken
	refs int
}

var _ Locker = (*Keyed)(nil)

// NewKeyed creates an in-process keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{}
}

// Lock acquires the lock for key.
func (k *Keyed) Lock(ctx context.Context, key string) (func() error, error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		err := ErrNotHeld
		once.Do(func() {
			<-e.ch
			k.release(key, e)
			err = nil
		})
		return err
	}, nil
}

// release drops a reference and forgets the key once nobody waits on it.
func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
