package surface

// ContentSink receives content pushes on behalf of a surface. The IPC server
// implements it by broadcasting to every connected peer.
type ContentSink interface {
	Emit(channel string, args ...any) error
}

type bridged struct {
	Surface
	sink ContentSink
}

// Bridge returns s with SendToContent redirected to sink. The coordinator's
// host surface is bridged this way: its content is the set of connected
// peers.
func Bridge(s Surface, sink ContentSink) Surface {
	return &bridged{Surface: s, sink: sink}
}

func (b *bridged) SendToContent(channel string, args ...any) error {
	return b.sink.Emit(channel, args...)
}

// BridgeFactory bridges every surface f creates to sink. Backends without a
// content runtime of their own are wrapped this way, so content pushes
// reach the peers that render or watch that content.
func BridgeFactory(f Factory, sink ContentSink) Factory {
	return FactoryFunc(func(opts Options, parent Surface) (Surface, error) {
		s, err := f.Create(opts, parent)
		if err != nil {
			return nil, err
		}
		return Bridge(s, sink), nil
	})
}

// Unwrap returns the surface behind a bridge, or s itself.
func Unwrap(s Surface) Surface {
	if b, ok := s.(*bridged); ok {
		return b.Surface
	}
	return s
}
