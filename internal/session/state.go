package session

import (
	"sync/atomic"

	"github.com/darmiel/taskdeck/internal/bundle"
)

// State is the in-memory "current bundle or none" read by all synchronous
// queries. It performs no I/O and may be read from any goroutine.
// Only the Manager mutates it.
type State struct {
	current atomic.Pointer[bundle.TokenBundle]
}

func NewState() *State {
	return &State{}
}

// Current returns a copy of the cached bundle, nil if there is none.
func (s *State) Current() *bundle.TokenBundle {
	return s.current.Load().Clone()
}

// Set replaces the cached bundle and returns the previous one.
func (s *State) Set(b *bundle.TokenBundle) *bundle.TokenBundle {
	return s.current.Swap(b.Clone())
}

// Clear empties the cache and returns the previous bundle.
func (s *State) Clear() *bundle.TokenBundle {
	return s.current.Swap(nil)
}
