package coordinator

import "github.com/1broseidon/winbridge/internal/surface"

// State is the lifecycle stage of one surface identity. Transitions only
// move forward, except that a close request the backend refuses returns
// the identity from Closing to Live.
type State int

const (
	StateCreated State = iota
	StateLive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Info describes one identity for inspection.
type Info struct {
	ID     surface.ID `json:"id"`
	State  string     `json:"state"`
	Title  string     `json:"title,omitempty"`
	Modal  bool       `json:"modal,omitempty"`
	Parent surface.ID `json:"parent,omitempty"`
	URL    string     `json:"url,omitempty"`
}
