package tracking

import "sync"

// itemLocks hands out one RWMutex per item ID. Entries are dropped once no
// goroutine holds or waits on them.
type itemLocks struct {
	mu sync.Mutex
	m  map[string]*itemLock
}

type itemLock struct {
	sync.RWMutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{m: make(map[string]*itemLock)}
}

func (l *itemLocks) acquire(id string) *itemLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[id]
	if !ok {
		e = &itemLock{}
		l.m[id] = e
	}
	e.refs++
	return e
}

func (l *itemLocks) release(id string, e *itemLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.m, id)
	}
}

// Lock takes the write lock for id and returns its unlock function.
func (l *itemLocks) Lock(id string) func() {
	e := l.acquire(id)
	e.Lock()
	return func() {
		e.Unlock()
		l.release(id, e)
	}
}

// RLock takes the read lock for id and returns its unlock function.
func (l *itemLocks) RLock(id string) func() {
	e := l.acquire(id)
	e.RLock()
	return func() {
		e.RUnlock()
		l.release(id, e)
	}
}

func (l *itemLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
