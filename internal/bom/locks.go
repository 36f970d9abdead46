package bom

import "sync"

// itemLocks serializes extraction runs per item number so two simultaneous
// exports for one assembly cannot interleave the delete-then-insert
// replacement.
type itemLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newItemLocks() *itemLocks {
	return &itemLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *itemLocks) lock(itemNumber string) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.locks[itemNumber]
	if !ok {
		m = &sync.Mutex{}
		l.locks[itemNumber] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m
}
