//go:build !linux

package platform

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/1broseidon/winbridge/internal/surface"
)

func openX11(string, *surface.Loader, *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("X11 backend is not supported on %s", runtime.GOOS)
}
