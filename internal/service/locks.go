package service

import (
	"sync"

	"github.com/google/uuid"
)

// teamLocks hands out one mutex per team so score mutation is serialized at
// the finest grain. Entries are never evicted; the set of teams is small.
type teamLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *teamLocks) Lock(teamID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[teamID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[teamID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
