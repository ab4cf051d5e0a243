package services

import "sync"

// teamLocks serializes mutations per team inside one process. The row lock
// taken in the transaction covers other processes sharing the database.
type teamLocks struct {
	mu    sync.Mutex
	locks map[uint]*teamLock
}

type teamLock struct {
	mu   sync.Mutex
	refs int
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[uint]*teamLock)}
}

// Lock blocks until the team is free and returns the matching unlock.
func (l *teamLocks) Lock(teamID uint) func() {
	l.mu.Lock()
	lock, ok := l.locks[teamID]
	if !ok {
		lock = &teamLock{}
		l.locks[teamID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, teamID)
		}
		l.mu.Unlock()
	}
}
