// Package headless is an in-memory surface backend. It keeps every piece of
// surface state observable, loads content through surface.Loader without
// rendering it, and lets callers inject failures. The daemon uses it when no
// display is available; tests use it everywhere.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1broseidon/winbridge/internal/surface"
)

// ErrDestroyed is returned by operations on a destroyed surface.
var ErrDestroyed = errors.New("headless: surface destroyed")

// Factory creates headless surfaces.
type Factory struct {
	Loader *surface.Loader

	mu       sync.Mutex
	surfaces []*Surface
	failNext error
}

// New returns a factory with a default loader.
func New() *Factory {
	return &Factory{Loader: &surface.Loader{}}
}

var _ surface.Factory = (*Factory)(nil)

// FailNext makes the next Create return err.
func (f *Factory) FailNext(err error) {
	f.mu.Lock()
	f.failNext = err
	f.mu.Unlock()
}

// Create builds a surface. It fails for options the backend cannot honour.
func (f *Factory) Create(opts surface.Options, parent surface.Surface) (surface.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Surface{
		opts:    opts,
		parent:  parent,
		loader:  f.Loader,
		visible: opts.ShouldShow(),
		focused: opts.ShouldShow(),
	}
	f.surfaces = append(f.surfaces, s)
	return s, nil
}

// Surfaces returns every surface created so far, destroyed ones included.
func (f *Factory) Surfaces() []*Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Surface(nil), f.surfaces...)
}

// Last returns the most recently created surface.
func (f *Factory) Last() *Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.surfaces) == 0 {
		return nil
	}
	return f.surfaces[len(f.surfaces)-1]
}

// Message is one push delivered to a surface's content.
type Message struct {
	Channel string
	Args    []any
}

// Surface is a headless presentation surface.
type Surface struct {
	opts   surface.Options
	parent surface.Surface
	loader *surface.Loader

	mu        sync.Mutex
	visible   bool
	focused   bool
	url       string
	content   *surface.Content
	messages  []Message
	destroyed bool
	hooks     []func()

	loadHook  func(ctx context.Context, url string) error
	onContent func(channel string, args ...any)
}

var _ surface.Surface = (*Surface)(nil)

func (s *Surface) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.visible = true
	s.focused = true
	return nil
}

func (s *Surface) ShowInactive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.visible = true
	s.focused = false
	return nil
}

// Close destroys the surface and runs the destruction hooks before
// returning. Closing a destroyed surface does nothing.
func (s *Surface) Close() error {
	s.destroy()
	return nil
}

// Destroy simulates destruction from outside the coordinator, such as the
// user closing the window.
func (s *Surface) Destroy() {
	s.destroy()
}

// Vanish marks the surface destroyed without running the destruction hooks,
// as if the signal had been lost.
func (s *Surface) Vanish() {
	s.mu.Lock()
	s.destroyed = true
	s.visible = false
	s.mu.Unlock()
}

// Alive reports whether the surface has not been destroyed.
func (s *Surface) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed
}

func (s *Surface) destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.visible = false
	s.focused = false
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (s *Surface) LoadURL(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	hook := s.loadHook
	s.mu.Unlock()

	var content *surface.Content
	var err error
	if hook != nil {
		err = hook(ctx, url)
		content = &surface.Content{URL: url}
	} else {
		content, err = s.loader.Load(ctx, url)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.url = url
	s.content = content
	return nil
}

func (s *Surface) SendToContent(channel string, args ...any) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return fmt.Errorf("send %q: %w", channel, ErrDestroyed)
	}
	s.messages = append(s.messages, Message{Channel: channel, Args: append([]any(nil), args...)})
	fn := s.onContent
	s.mu.Unlock()

	if fn != nil {
		fn(channel, args...)
	}
	return nil
}

func (s *Surface) OnDestroyed(fn func()) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// SetLoadHook replaces content loading with fn. Tests use it to hold a load
// open or make it fail.
func (s *Surface) SetLoadHook(fn func(ctx context.Context, url string) error) {
	s.mu.Lock()
	s.loadHook = fn
	s.mu.Unlock()
}

// SetContentHandler installs a callback for content pushes, standing in for
// a content runtime.
func (s *Surface) SetContentHandler(fn func(channel string, args ...any)) {
	s.mu.Lock()
	s.onContent = fn
	s.mu.Unlock()
}

func (s *Surface) Options() surface.Options { return s.opts }

func (s *Surface) Parent() surface.Surface { return s.parent }

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Surface) Focused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Surface) Content() *surface.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

func (s *Surface) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
