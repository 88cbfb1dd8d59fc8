package x11

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/winbridge/internal/surface"
)

// ErrDestroyed is returned by operations on a window that no longer exists.
var ErrDestroyed = errors.New("x11: window destroyed")

const (
	fallbackWidth  = 800
	fallbackHeight = 600
)

// Factory creates native X11 top-level windows. It has no content engine:
// loaded documents are fetched and validated but not rendered, and the
// daemon bridges content pushes to peers.
type Factory struct {
	conn   *Connection
	loader *surface.Loader
	logger *slog.Logger
}

var _ surface.Factory = (*Factory)(nil)

func NewFactory(conn *Connection, loader *surface.Loader, logger *slog.Logger) *Factory {
	if loader == nil {
		loader = &surface.Loader{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Factory{conn: conn, loader: loader, logger: logger}
}

// Create makes an unmapped window, sets its window manager properties and
// maps it unless opts say otherwise. A parent created by this factory
// becomes the window's WM_TRANSIENT_FOR.
func (f *Factory) Create(opts surface.Options, parent surface.Surface) (surface.Surface, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	hints := hintsFor(opts)
	if p, ok := surface.Unwrap(parent).(*Surface); ok && p != nil {
		hints.transientFor = p.win
	}
	if _, hasX := extraInt(opts.Extra, "x"); !hasX {
		if mon, err := f.conn.ActiveMonitor(); err == nil {
			hints.x, hints.y = centerIn(*mon, hints.width, hints.height)
		} else {
			f.logger.Debug("monitor lookup failed, placing at origin", "error", err)
		}
	}

	xwin, err := xwindow.Generate(f.conn.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate window id: %w", err)
	}
	err = xwin.CreateChecked(f.conn.Root, hints.x, hints.y, hints.width, hints.height,
		xproto.CwBackPixel|xproto.CwEventMask,
		0xffffff, xproto.EventMaskStructureNotify)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	s := &Surface{
		conn:   f.conn,
		loader: f.loader,
		logger: f.logger.With("window", uint32(xwin.Id)),
		win:    xwin.Id,
		title:  opts.Title,
	}
	if err := f.conn.configure(xwin.Id, opts.Title, hints); err != nil {
		xproto.DestroyWindow(f.conn.XUtil.Conn(), xwin.Id)
		return nil, err
	}
	s.attach()

	if opts.ShouldShow() {
		if err := s.Show(); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func hintsFor(opts surface.Options) windowHints {
	h := windowHints{
		modal:       opts.Modal,
		alwaysOnTop: extraBool(opts.Extra, "always_on_top", false),
		skipTaskbar: extraBool(opts.Extra, "skip_taskbar", false),
		resizable:   extraBool(opts.Extra, "resizable", true),
		width:       opts.Width,
		height:      opts.Height,
	}
	if h.width == 0 {
		h.width = fallbackWidth
	}
	if h.height == 0 {
		h.height = fallbackHeight
	}
	h.x, _ = extraInt(opts.Extra, "x")
	h.y, _ = extraInt(opts.Extra, "y")
	return h
}

// Surface is one X11 window.
type Surface struct {
	conn   *Connection
	loader *surface.Loader
	logger *slog.Logger
	win    xproto.Window
	title  string

	mu        sync.Mutex
	url       string
	content   *surface.Content
	destroyed bool
	hooks     []func()
}

var _ surface.Surface = (*Surface)(nil)

// Window returns the X window id.
func (s *Surface) Window() xproto.Window { return s.win }

// attach connects the event handlers. DestroyNotify is the single place
// destruction is observed, whether it came from Close, a user close or
// another client killing the window.
func (s *Surface) attach() {
	xu := s.conn.XUtil
	xevent.DestroyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
		if ev.Window == s.win {
			s.markDestroyed()
		}
	}).Connect(xu, s.win)
	xevent.ClientMessageFun(func(_ *xgbutil.XUtil, ev xevent.ClientMessageEvent) {
		if s.conn.isDeleteRequest(ev) {
			s.logger.Debug("close requested by window manager")
			if err := s.Close(); err != nil {
				s.logger.Warn("failed to close window", "error", err)
			}
		}
	}).Connect(xu, s.win)
}

func (s *Surface) markDestroyed() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	xevent.Detach(s.conn.XUtil, s.win)
	for _, fn := range hooks {
		fn()
	}
}

func (s *Surface) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Surface) Show() error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	if err := xproto.MapWindowChecked(s.conn.XUtil.Conn(), s.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	if err := s.conn.activate(s.win); err != nil {
		return fmt.Errorf("failed to activate window: %w", err)
	}
	return nil
}

// ShowInactive maps the window with a zero user time, which EWMH window
// managers take as "do not focus".
func (s *Surface) ShowInactive() error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	if err := ewmh.WmUserTimeSet(s.conn.XUtil, s.win, 0); err != nil {
		return fmt.Errorf("failed to set _NET_WM_USER_TIME: %w", err)
	}
	if err := xproto.MapWindowChecked(s.conn.XUtil.Conn(), s.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	return nil
}

// Close destroys the window. The destruction hooks run later, from the
// event loop, when the DestroyNotify arrives.
func (s *Surface) Close() error {
	if s.isDestroyed() {
		return nil
	}
	if err := xproto.DestroyWindowChecked(s.conn.XUtil.Conn(), s.win).Check(); err != nil {
		var badWindow xproto.WindowError
		if errors.As(err, &badWindow) {
			// Already gone; DestroyNotify is on its way.
			return nil
		}
		return fmt.Errorf("failed to destroy window: %w", err)
	}
	return nil
}

func (s *Surface) LoadURL(ctx context.Context, url string) error {
	if s.isDestroyed() {
		return ErrDestroyed
	}
	content, err := s.loader.Load(ctx, url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.url = url
	s.content = content
	s.mu.Unlock()

	if err := s.conn.setTitle(s.win, windowTitle(s.title, url)); err != nil {
		s.logger.Debug("failed to retitle window", "error", err)
	}
	s.logger.Debug("content loaded", "url", url, "media_type", content.MediaType, "bytes", len(content.Body))
	return nil
}

// SendToContent has nowhere to deliver: this backend runs no content.
func (s *Surface) SendToContent(channel string, args ...any) error {
	s.logger.Debug("content push without content runtime", "channel", channel, "args", len(args))
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

// Alive asks the X server whether the window still exists.
func (s *Surface) Alive() bool {
	if s.isDestroyed() {
		return false
	}
	_, err := xproto.GetGeometry(s.conn.XUtil.Conn(), xproto.Drawable(s.win)).Reply()
	return err == nil
}

// URL returns the last successfully loaded URL.
func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func windowTitle(title, url string) string {
	switch {
	case title == "":
		return url
	case url == "" || url == "about:blank":
		return title
	default:
		return title + " (" + url + ")"
	}
}

func extraBool(extra map[string]any, key string, def bool) bool {
	if v, ok := extra[key].(bool); ok {
		return v
	}
	return def
}

// extraInt reads a numeric pass-through option. Decoded payloads carry
// numbers as any of the integer kinds or float64.
func extraInt(extra map[string]any, key string) (int, bool) {
	switch v := extra[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
