package surface

import "sync"

// TopLevel holds the coordinator's own top-level surface. Modal children are
// parented to it and per-identity pushes are delivered to its content.
// It is set once the host surface exists and cleared when that surface is
// destroyed.
type TopLevel struct {
	mu      sync.RWMutex
	surface Surface
}

// Get returns the current top-level surface, if any.
func (t *TopLevel) Get() (Surface, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.surface, t.surface != nil
}

// Set installs s as the top-level surface.
func (t *TopLevel) Set(s Surface) {
	t.mu.Lock()
	t.surface = s
	t.mu.Unlock()
}

// Clear removes the top-level surface.
func (t *TopLevel) Clear() {
	t.Set(nil)
}

// ClearIf removes the top-level surface only if it is still s. It reports
// whether anything was removed.
func (t *TopLevel) ClearIf(s Surface) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.surface != s || s == nil {
		return false
	}
	t.surface = nil
	return true
}

// SendToContent pushes to the top-level content. It reports false when there
// is no top-level surface; such pushes are dropped.
func (t *TopLevel) SendToContent(channel string, args ...any) (bool, error) {
	s, ok := t.Get()
	if !ok {
		return false, nil
	}
	return true, s.SendToContent(channel, args...)
}
