// Package surface defines the boundary between the coordinator and the
// presentation layer that actually owns windows. Backends (X11, headless)
// implement Factory and Surface; the coordinator never touches a window
// system directly.
package surface

import (
	"context"
	"fmt"
	"strconv"
)

// ID names one live surface across the process boundary. IDs are allocated
// by the coordinator and never reused within a coordinator's lifetime.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form produced by String.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid surface id %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid surface id %q: ids start at 1", s)
	}
	return ID(n), nil
}

// Surface is one real presentation object owned by the coordinator.
//
// Implementations must fire every OnDestroyed callback exactly once, when
// the underlying window is gone, whatever caused it. A callback registered
// after destruction fires immediately. Callbacks may run on any goroutine
// and may run synchronously inside Close.
type Surface interface {
	// Show makes the surface visible and requests focus.
	Show() error
	// ShowInactive makes the surface visible without activating it.
	ShowInactive() error
	// Close requests destruction. Completion is signalled by OnDestroyed.
	Close() error
	// LoadURL replaces the displayed content and returns once loading
	// finished or failed.
	LoadURL(ctx context.Context, url string) error
	// SendToContent pushes an application message to the content.
	SendToContent(channel string, args ...any) error
	// OnDestroyed registers a destruction callback.
	OnDestroyed(fn func())
}

// Prober is implemented by surfaces that can check whether their window
// still exists, independently of destruction callbacks.
type Prober interface {
	Alive() bool
}

// Factory constructs surfaces. parent is nil for top-level surfaces.
type Factory interface {
	Create(opts Options, parent Surface) (Surface, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(opts Options, parent Surface) (Surface, error)

func (f FactoryFunc) Create(opts Options, parent Surface) (Surface, error) {
	return f(opts, parent)
}
