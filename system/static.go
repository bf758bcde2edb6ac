package system

import "sync"

// Static is a SystemPreference whose value is set by the caller, for
// example from a browser tab reporting its prefers-color-scheme media query.
type Static struct {
	mu       sync.Mutex
	dark     bool
	nextID   int
	watchers map[int]func(bool)
}

// NewStatic creates a Static with an initial value.
func NewStatic(dark bool) *Static {
	return &Static{dark: dark, watchers: make(map[int]func(bool))}
}

// PrefersDark returns the current value.
func (s *Static) PrefersDark() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Set changes the value and notifies watchers when it differs.
func (s *Static) Set(dark bool) {
	s.mu.Lock()
	if s.dark == dark {
		s.mu.Unlock()
		return
	}
	s.dark = dark
	fns := make([]func(bool), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(dark)
	}
}

// Watch registers fn for changes made through Set.
func (s *Static) Watch(fn func(dark bool)) (stop func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Watchers returns the number of registered watchers.
func (s *Static) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}
