package common

import (
	"errors"
	"sync"
)

var ErrReentrantCall = errors.New("reentrant call")

// CallGuard tracks in-flight operations per entity so that an external
// transfer callback cannot re-enter the same ledger while a state transition
// is still being applied. Enter must be paired with Exit on every path.
type CallGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewCallGuard() *CallGuard {
	return &CallGuard{active: make(map[string]bool)}
}

// Enter marks the entity as busy. It fails with ErrReentrantCall when an
// operation against the same entity is already in flight.
func (g *CallGuard) Enter(entity string) error {
	if g == nil || entity == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[entity] {
		return ErrReentrantCall
	}
	g.active[entity] = true
	return nil
}

// Exit clears the in-flight marker for the entity.
func (g *CallGuard) Exit(entity string) {
	if g == nil || entity == "" {
		return
	}
	g.mu.Lock()
	delete(g.active, entity)
	g.mu.Unlock()
}
