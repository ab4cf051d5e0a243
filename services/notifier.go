package services

import (
	"context"
	"sync"
)

// TeamNotifier is told about every committed team mutation. Calls happen
// after the transaction commits and must not block for long.
type TeamNotifier interface {
	TeamChanged(ctx context.Context, snapshot *TeamSnapshot)
	TeamDeleted(ctx context.Context, teamID uint)
}

// MultiNotifier fans notifications out to several notifiers.
type MultiNotifier struct {
	mu        sync.RWMutex
	notifiers []TeamNotifier
}

func NewMultiNotifier(notifiers ...TeamNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Add(n TeamNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

func (m *MultiNotifier) TeamChanged(ctx context.Context, snapshot *TeamSnapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.notifiers {
		n.TeamChanged(ctx, snapshot)
	}
}

func (m *MultiNotifier) TeamDeleted(ctx context.Context, teamID uint) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.notifiers {
		n.TeamDeleted(ctx, teamID)
	}
}
