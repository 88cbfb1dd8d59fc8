//go:build linux

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/1broseidon/winbridge/internal/surface"
	"github.com/1broseidon/winbridge/internal/x11"
)

// LinuxBackend wraps an X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn    *x11.Connection
	factory *x11.Factory

	stopOnce sync.Once
	stopping chan struct{}
}

var _ Backend = (*LinuxBackend)(nil)

func openX11(display string, loader *surface.Loader, logger *slog.Logger) (Backend, error) {
	conn, err := x11.NewConnection(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{
		conn:     conn,
		factory:  x11.NewFactory(conn, loader, logger.With("backend", X11)),
		stopping: make(chan struct{}),
	}, nil
}

func (b *LinuxBackend) Name() string { return X11 }

func (b *LinuxBackend) Factory() surface.Factory { return b.factory }

// Run runs the X11 event loop. It fails if the loop ends before Stop, which
// means the display connection was lost.
func (b *LinuxBackend) Run() error {
	b.conn.EventLoop()
	select {
	case <-b.stopping:
		return nil
	default:
		return fmt.Errorf("X11 event loop exited unexpectedly")
	}
}

// Stop quits the event loop and disconnects. Closing the connection also
// wakes an event loop blocked waiting for the next event.
func (b *LinuxBackend) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopping)
		b.conn.Quit()
		b.conn.Close()
	})
}
