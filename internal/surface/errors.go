package surface

import (
	"errors"

	"github.com/1broseidon/winbridge/internal/ipc"
)

var (
	// ErrConstruction rejects a create whose surface could not be built.
	ErrConstruction = ipc.NewError(ipc.CodeConstruction, "surface construction failed")

	// ErrStaleIdentity rejects requests for an identity that is closing or
	// closed.
	ErrStaleIdentity = ipc.NewError(ipc.CodeStaleIdentity, "stale surface identity")

	// ErrRelay reports content that failed to load.
	ErrRelay = ipc.NewError(ipc.CodeRelay, "content relay failed")

	// ErrUseAfterClose is returned locally by a handle whose surface has
	// already closed. It never crosses the wire.
	ErrUseAfterClose = errors.New("surface handle used after close")
)
