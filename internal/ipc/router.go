package ipc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Call describes one inbound invoke or send.
type Call struct {
	Channel string
	Args    Args
	// Session identifies the connection the call arrived on.
	Session string
}

// HandlerFunc serves invokes on one channel. The returned value is encoded
// as the result; a nil value produces an empty result.
//
// A handler that must wait (content loading, for example) returns an Async.
// The connection then keeps dispatching later requests and the reply is
// written when the Async finishes.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// ListenerFunc receives fire-and-forget sends on one channel.
type ListenerFunc func(ctx context.Context, call *Call)

// Async is the deferred part of a handler.
type Async func(ctx context.Context) (any, error)

// Router maps channel names to handlers and listeners. Names can be bound
// and unbound at any time; lookups always see a consistent table.
type Router struct {
	mu        sync.RWMutex
	handlers  map[string]HandlerFunc
	listeners map[string][]ListenerFunc
	notFound  HandlerFunc
	logger    *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers:  make(map[string]HandlerFunc),
		listeners: make(map[string][]ListenerFunc),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger recovered panics are reported to.
func (r *Router) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Router) log() *slog.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// recovered logs a panic with its stack and turns it into the error sent to
// the caller. The stack stays in the local log.
func (r *Router) recovered(channel string, p any) error {
	r.log().Error("handler panicked", "channel", channel, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
	return NewError(CodeInternal, fmt.Sprintf("handler for %q panicked: %v", channel, p))
}

// Handle binds h to name. A name has at most one handler.
func (r *Router) Handle(name string, h HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("channel name is required")
	}
	if h == nil {
		return fmt.Errorf("nil handler for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrChannelInUse, name)
	}
	r.handlers[name] = h
	return nil
}

// RemoveHandler unbinds the handler for name, if any.
func (r *Router) RemoveHandler(name string) {
	r.mu.Lock()
	delete(r.handlers, name)
	r.mu.Unlock()
}

// On adds a listener for sends on name.
func (r *Router) On(name string, l ListenerFunc) {
	if l == nil {
		return
	}
	r.mu.Lock()
	r.listeners[name] = append(r.listeners[name], l)
	r.mu.Unlock()
}

// RemoveAllListeners drops every listener for name.
func (r *Router) RemoveAllListeners(name string) {
	r.mu.Lock()
	delete(r.listeners, name)
	r.mu.Unlock()
}

// HandleNotFound sets the handler used for invokes on unbound channels.
// Without one, such invokes fail with ErrNoHandler.
func (r *Router) HandleNotFound(h HandlerFunc) {
	r.mu.Lock()
	r.notFound = h
	r.mu.Unlock()
}

// HasHandler reports whether name currently has a handler.
func (r *Router) HasHandler(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// ListenerCount returns the number of listeners bound to name.
func (r *Router) ListenerCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[name])
}

// Invoke runs the handler for call.Channel. Panics are recovered and
// reported as CodeInternal so one bad request cannot take the process down.
func (r *Router) Invoke(ctx context.Context, call *Call) (result any, err error) {
	r.mu.RLock()
	h, ok := r.handlers[call.Channel]
	if !ok {
		h = r.notFound
	}
	r.mu.RUnlock()

	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, call.Channel)
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = r.recovered(call.Channel, p)
		}
	}()
	return h(ctx, call)
}

// Finish runs the deferred part of a handler for call with the same panic
// handling as Invoke.
func (r *Router) Finish(ctx context.Context, call *Call, async Async) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = r.recovered(call.Channel, p)
		}
	}()
	return async(ctx)
}

// Notify delivers a send to every listener bound at the time of the call.
// Sends to channels without listeners are dropped.
func (r *Router) Notify(ctx context.Context, call *Call) {
	r.mu.RLock()
	ls := append([]ListenerFunc(nil), r.listeners[call.Channel]...)
	r.mu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log().Error("listener panicked", "channel", call.Channel, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				}
			}()
			l(ctx, call)
		}()
	}
}
