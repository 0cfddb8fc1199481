// Package keylock provides mutual exclusion per int64 key (a Telegram user id).
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks hands out one mutex per key and forgets keys nobody holds or waits on.
type Locks struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty lock table.
func New() *Locks {
	return &Locks{entries: make(map[int64]*entry)}
}

// Lock blocks until key is free and returns its unlock function.
func (l *Locks) Lock(key int64) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
