// Package platform selects the window system backend the daemon runs on.
package platform

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/1broseidon/winbridge/internal/surface"
	"github.com/1broseidon/winbridge/internal/surface/headless"
)

// Backend names, as used in the configuration file.
const (
	Auto     = "auto"
	X11      = "x11"
	Headless = "headless"
)

// Backend abstracts the window system behind the surface factory.
type Backend interface {
	// Name is the concrete backend name (never Auto).
	Name() string
	Factory() surface.Factory
	// Run dispatches window system events until Stop is called (blocking).
	Run() error
	// Stop ends Run and releases the window system connection.
	Stop()
}

// Open returns the backend named kind. Auto picks X11 when a display is
// configured or $DISPLAY is set and falls back to headless when the display
// cannot be reached.
func Open(kind, display string, loader *surface.Loader, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	switch kind {
	case Headless:
		return NewHeadless(loader), nil
	case X11:
		return openX11(display, loader, logger)
	case Auto, "":
		if display == "" && os.Getenv("DISPLAY") == "" {
			logger.Info("no display configured, using headless backend")
			return NewHeadless(loader), nil
		}
		b, err := openX11(display, loader, logger)
		if err != nil {
			logger.Warn("X11 unavailable, using headless backend", "error", err)
			return NewHeadless(loader), nil
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// HeadlessBackend runs surfaces in memory.
type HeadlessBackend struct {
	factory *headless.Factory

	stopOnce sync.Once
	stopped  chan struct{}
}

var _ Backend = (*HeadlessBackend)(nil)

func NewHeadless(loader *surface.Loader) *HeadlessBackend {
	f := headless.New()
	if loader != nil {
		f.Loader = loader
	}
	return &HeadlessBackend{factory: f, stopped: make(chan struct{})}
}

func (b *HeadlessBackend) Name() string { return Headless }

func (b *HeadlessBackend) Factory() surface.Factory { return b.factory }

// Surfaces exposes the headless factory for inspection.
func (b *HeadlessBackend) Surfaces() *headless.Factory { return b.factory }

func (b *HeadlessBackend) Run() error {
	<-b.stopped
	return nil
}

func (b *HeadlessBackend) Stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
}
