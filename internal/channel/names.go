// Package channel derives the per-surface channel names both sides of the
// socket agree on and keeps track of which names are bound on the
// coordinator's router.
package channel

import (
	"fmt"
	"strings"

	"github.com/1broseidon/winbridge/internal/surface"
)

// Create is the global channel that constructs a new surface.
const Create = "create"

// Op is one per-surface operation.
type Op string

const (
	OpShow    Op = "show"
	OpClose   Op = "close"
	OpLoadURL Op = "loadURL"
	OpSend    Op = "send"
	OpMessage Op = "message"
	OpClosed  Op = "closed"
)

// Ops lists every per-surface operation. No other per-surface channel
// exists.
var Ops = [...]Op{OpShow, OpClose, OpLoadURL, OpSend, OpMessage, OpClosed}

func (op Op) valid() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Name returns the channel for op on the surface id, e.g. "7_loadURL".
func Name(id surface.ID, op Op) string {
	return fmt.Sprintf("%d_%s", uint64(id), op)
}

// Parse splits a per-surface channel name. It reports false for the global
// channel and for anything Name cannot produce.
func Parse(name string) (surface.ID, Op, bool) {
	prefix, rest, ok := strings.Cut(name, "_")
	if !ok {
		return 0, "", false
	}
	id, err := surface.ParseID(prefix)
	if err != nil || id.String() != prefix {
		return 0, "", false
	}
	op := Op(rest)
	if !op.valid() {
		return 0, "", false
	}
	return id, op, true
}

// Set holds the six channel names of one surface.
type Set struct {
	ID      surface.ID
	Show    string
	Close   string
	LoadURL string
	Send    string
	Message string
	Closed  string
}

// NewSet derives the channel set for id.
func NewSet(id surface.ID) Set {
	return Set{
		ID:      id,
		Show:    Name(id, OpShow),
		Close:   Name(id, OpClose),
		LoadURL: Name(id, OpLoadURL),
		Send:    Name(id, OpSend),
		Message: Name(id, OpMessage),
		Closed:  Name(id, OpClosed),
	}
}

// Names returns the set's channel names in Ops order.
func (s Set) Names() []string {
	return []string{s.Show, s.Close, s.LoadURL, s.Send, s.Message, s.Closed}
}
