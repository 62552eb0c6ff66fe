package common

import "sync"

// Switchboard is the in-process PauseView implementation. Governance tooling
// flips flags here; every module flow consults it through Guard.
type Switchboard struct {
	mu     sync.RWMutex
	halted map[string]bool
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{halted: make(map[string]bool)}
}

// SetPaused halts or resumes the named module flow.
func (s *Switchboard) SetPaused(module string, paused bool) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		s.halted[module] = true
		return
	}
	delete(s.halted, module)
}

// IsPaused reports whether the named module flow is halted.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted[module]
}
