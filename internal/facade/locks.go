package facade

import (
	"context"
	"fmt"
	"sync"
)

// rootLocks serializes mutating operations per repository root. Entries are dropped
// once nobody holds or waits for them.
type rootLocks struct {
	mu    sync.Mutex
	locks map[string]*rootLock
}

type rootLock struct {
	ch   chan struct{}
	refs int
}

func newRootLocks() *rootLocks {
	return &rootLocks{locks: make(map[string]*rootLock)}
}

// acquire blocks until root is free or ctx is done.
func (l *rootLocks) acquire(ctx context.Context, root string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.locks[root]
	if !ok {
		rl = &rootLock{ch: make(chan struct{}, 1)}
		l.locks[root] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-rl.ch
				l.release(root, rl)
			})
		}, nil
	case <-ctx.Done():
		l.release(root, rl)
		return nil, fmt.Errorf("waiting for another operation on %s: %w", root, ctx.Err())
	}
}

func (l *rootLocks) release(root string, rl *rootLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, root)
	}
}
