// Package remote is the peer side of the surface protocol. A Window stands
// in for one coordinator-owned surface and is valid until the coordinator
// reports that surface closed.
package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/1broseidon/winbridge/internal/channel"
	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/surface"
)

// Conn is the transport a Window talks through. *ipc.Client implements it.
type Conn interface {
	Invoke(ctx context.Context, name string, args ...any) (ipc.Result, error)
	Send(name string, args ...any) error
	On(name string, fn ipc.PushFunc) (cancel func())
}

var _ Conn = (*ipc.Client)(nil)

// Event is pushed to Window subscribers. It is either a MessageEvent or a
// ClosedEvent.
type Event interface {
	event()
}

// MessageEvent carries the arguments of one message push, in the order and
// encoding the sender used.
type MessageEvent struct {
	Args ipc.Args
}

// ClosedEvent is delivered once, when the surface has been torn down.
type ClosedEvent struct{}

func (MessageEvent) event() {}
func (ClosedEvent) event() {}

// Window is a remote handle to one surface.
type Window struct {
	id   surface.ID
	conn Conn
	set  channel.Set

	mu     sync.Mutex
	closed bool
	subs   map[uint64]func(Event)
	next   uint64
	unsub  []func()
	done   chan struct{}
}

// Create asks the coordinator for a new surface and returns its handle.
func Create(ctx context.Context, conn Conn, opts surface.Options) (*Window, error) {
	res, err := conn.Invoke(ctx, channel.Create, opts)
	if err != nil {
		return nil, err
	}
	var id surface.ID
	if err := res.Decode(&id); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, fmt.Errorf("coordinator returned no surface identity")
	}
	return Attach(conn, id), nil
}

// Attach wraps an identity obtained some other way, for example from the
// first argument of a content push. It subscribes to the identity's
// message and closed channels right away.
func Attach(conn Conn, id surface.ID) *Window {
	w := &Window{
		id:   id,
		conn: conn,
		set:  channel.NewSet(id),
		subs: make(map[uint64]func(Event)),
		done: make(chan struct{}),
	}
	w.mu.Lock()
	w.unsub = []func(){
		conn.On(w.set.Message, w.onMessage),
		conn.On(w.set.Closed, w.onClosed),
	}
	w.mu.Unlock()
	return w
}

// ID returns the surface identity.
func (w *Window) ID() surface.ID { return w.id }

// Channels returns the identity's channel names.
func (w *Window) Channels() channel.Set { return w.set }

// Show makes the surface visible and focuses it.
func (w *Window) Show(ctx context.Context) error {
	return w.invoke(ctx, w.set.Show, surface.ShowOptions{Focused: true})
}

// ShowInactive makes the surface visible without focusing it.
func (w *Window) ShowInactive(ctx context.Context) error {
	return w.invoke(ctx, w.set.Show, surface.ShowOptions{Focused: false})
}

// Close asks the coordinator to destroy the surface. It returns once the
// request is accepted; Done is closed when the surface is actually gone.
func (w *Window) Close(ctx context.Context) error {
	return w.invoke(ctx, w.set.Close)
}

// LoadURL replaces the surface content and waits for the load to finish.
func (w *Window) LoadURL(ctx context.Context, url string) error {
	return w.invoke(ctx, w.set.LoadURL, url)
}

// Send pushes a message on name to the surface content. The content
// receives the surface identity followed by args.
func (w *Window) Send(ctx context.Context, name string, args ...any) error {
	return w.invoke(ctx, w.set.Send, append([]any{name}, args...)...)
}

// PostMessage sends args to the top-level content on the identity's
// message channel. It does not wait for delivery.
func (w *Window) PostMessage(args ...any) error {
	if err := w.usable(); err != nil {
		return err
	}
	return w.conn.Send(w.set.Message, args...)
}

func (w *Window) invoke(ctx context.Context, name string, args ...any) error {
	if err := w.usable(); err != nil {
		return err
	}
	_, err := w.conn.Invoke(ctx, name, args...)
	if errors.Is(err, surface.ErrStaleIdentity) {
		// The coordinator no longer serves this identity. Its closed push
		// may have gone out before this proxy was listening.
		w.onClosed(nil)
	}
	return err
}

func (w *Window) usable() error {
	if w.Closed() {
		return fmt.Errorf("%w: surface %s", surface.ErrUseAfterClose, w.id)
	}
	return nil
}

// Subscribe registers fn for every event of the window. Events are
// delivered one at a time in arrival order. Subscribing to a closed window
// delivers a ClosedEvent immediately.
func (w *Window) Subscribe(fn func(Event)) (cancel func()) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		fn(ClosedEvent{})
		return func() {}
	}
	w.next++
	sub := w.next
	w.subs[sub] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, sub)
		w.mu.Unlock()
	}
}

// OnMessage registers fn for message events only.
func (w *Window) OnMessage(fn func(args ipc.Args)) (cancel func()) {
	return w.Subscribe(func(ev Event) {
		if m, ok := ev.(MessageEvent); ok {
			fn(m.Args)
		}
	})
}

// OnClosed registers fn for the closed event.
func (w *Window) OnClosed(fn func()) (cancel func()) {
	return w.Subscribe(func(ev Event) {
		if _, ok := ev.(ClosedEvent); ok {
			fn()
		}
	})
}

// Done is closed when the surface has been torn down.
func (w *Window) Done() <-chan struct{} { return w.done }

// Closed reports whether the closed event has been received.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) onMessage(args ipc.Args) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	fns := w.snapshot()
	w.mu.Unlock()

	for _, fn := range fns {
		fn(MessageEvent{Args: args})
	}
}

func (w *Window) onClosed(ipc.Args) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	fns := w.snapshot()
	unsub := w.unsub
	w.unsub = nil
	w.subs = nil
	close(w.done)
	w.mu.Unlock()

	for _, cancel := range unsub {
		cancel()
	}
	for _, fn := range fns {
		fn(ClosedEvent{})
	}
}

// snapshot returns subscribers in registration order. w.mu must be held.
func (w *Window) snapshot() []func(Event) {
	subs := make([]uint64, 0, len(w.subs))
	for sub := range w.subs {
		subs = append(subs, sub)
	}
	slices.Sort(subs)
	fns := make([]func(Event), len(subs))
	for i, sub := range subs {
		fns[i] = w.subs[sub]
	}
	return fns
}
