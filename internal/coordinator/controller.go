// Package coordinator owns the real surfaces. It answers the global create
// channel, binds a private channel set for every surface it builds, and
// tears that set down exactly once when the surface goes away, whatever
// caused it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/1broseidon/winbridge/internal/channel"
	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/surface"
)

// ErrShuttingDown rejects creates once Shutdown has begun.
var ErrShuttingDown = errors.New("coordinator is shutting down")

// Settings are the tunables that can change while the coordinator runs.
type Settings struct {
	Defaults surface.Defaults
	// MaxSurfaces caps live surfaces; 0 means no limit.
	MaxSurfaces int
	// LoadTimeout bounds each loadURL; 0 means no deadline.
	LoadTimeout time.Duration
}

// Config holds the collaborators of a Controller.
type Config struct {
	Router   *ipc.Router
	Factory  surface.Factory
	TopLevel *surface.TopLevel
	Logger   *slog.Logger
	Settings Settings
}

// Controller is the coordinator's surface controller.
type Controller struct {
	router   *ipc.Router
	factory  surface.Factory
	top      *surface.TopLevel
	registry *channel.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	settings Settings
	nextID   uint64
	entries  map[surface.ID]*entry
	building int
	stopping bool
}

type entry struct {
	id      surface.ID
	surface surface.Surface
	set     channel.Set
	state   State
	title   string
	modal   bool
	parent  surface.ID
	url     string

	// ctx is cancelled by teardown so that in-flight loads settle.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a controller and binds the global create channel on
// cfg.Router.
func New(cfg Config) (*Controller, error) {
	if cfg.Router == nil {
		return nil, fmt.Errorf("coordinator: router is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("coordinator: surface factory is required")
	}
	top := cfg.TopLevel
	if top == nil {
		top = &surface.TopLevel{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{
		router:   cfg.Router,
		factory:  cfg.Factory,
		top:      top,
		registry: channel.NewRegistry(cfg.Router),
		logger:   logger,
		settings: cfg.Settings,
		entries:  make(map[surface.ID]*entry),
	}
	if err := cfg.Router.Handle(channel.Create, c.handleCreate); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	cfg.Router.HandleNotFound(c.handleNotFound)
	return c, nil
}

// TopLevel returns the holder of the coordinator's top-level surface.
func (c *Controller) TopLevel() *surface.TopLevel { return c.top }

// Registry exposes the channel registry for inspection.
func (c *Controller) Registry() *channel.Registry { return c.registry }

// Reconfigure replaces the settings. Live surfaces keep the options they
// were created with.
func (c *Controller) Reconfigure(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Create builds a surface in-process, exactly as a create request from a
// peer would.
func (c *Controller) Create(opts surface.Options) (surface.ID, error) {
	return c.create(opts)
}

func (c *Controller) handleCreate(ctx context.Context, call *ipc.Call) (any, error) {
	var opts surface.Options
	if call.Args.Len() > 0 {
		if err := call.Args.Decode(0, &opts); err != nil {
			return nil, fmt.Errorf("%w: %v", surface.ErrConstruction, err)
		}
		var raw map[string]any
		if err := call.Args.Decode(0, &raw); err == nil {
			surface.CollectExtra(&opts, raw)
		}
	}
	id, err := c.create(opts)
	if err != nil {
		return nil, err
	}
	return uint64(id), nil
}

func (c *Controller) create(opts surface.Options) (surface.ID, error) {
	c.mu.Lock()
	settings := c.settings
	if c.stopping {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %w", surface.ErrConstruction, ErrShuttingDown)
	}
	if settings.MaxSurfaces > 0 && len(c.entries)+c.building >= settings.MaxSurfaces {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: limit of %d surfaces reached", surface.ErrConstruction, settings.MaxSurfaces)
	}
	c.building++
	c.mu.Unlock()

	id, err := c.build(settings, opts)

	c.mu.Lock()
	c.building--
	c.mu.Unlock()
	return id, err
}

func (c *Controller) build(settings Settings, opts surface.Options) (surface.ID, error) {

	opts = settings.Defaults.Apply(opts)
	if err := opts.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", surface.ErrConstruction, err)
	}

	var parent surface.Surface
	parentID := opts.Parent
	switch {
	case opts.Modal:
		// Modal surfaces always belong to the top-level surface, or to
		// nothing when there is none.
		parent, _ = c.top.Get()
		parentID = 0
	case opts.Parent != 0:
		p, err := c.live(opts.Parent)
		if err != nil {
			return 0, fmt.Errorf("%w: parent %s is not live", surface.ErrConstruction, opts.Parent)
		}
		parent = p.surface
	}

	s, err := c.factory.Create(opts, parent)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", surface.ErrConstruction, err)
	}
	if s == nil {
		return 0, fmt.Errorf("%w: backend returned no surface", surface.ErrConstruction)
	}

	c.mu.Lock()
	c.nextID++
	id := surface.ID(c.nextID)
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		id:      id,
		surface: s,
		state:   StateCreated,
		title:   opts.Title,
		modal:   opts.Modal,
		parent:  parentID,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.entries[id] = e
	c.mu.Unlock()

	set, err := c.registry.Register(id, c.bindings(id))
	if err != nil {
		c.abort(e)
		return 0, fmt.Errorf("%w: %w", surface.ErrConstruction, err)
	}

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		c.registry.Deregister(id)
		c.abort(e)
		return 0, fmt.Errorf("%w: %w", surface.ErrConstruction, ErrShuttingDown)
	}
	e.set = set
	e.state = StateLive
	c.mu.Unlock()

	// The hook may run right away if the surface is already gone.
	s.OnDestroyed(func() { c.teardown(id) })

	// A surface destroyed before this point has already been torn down;
	// the caller never learns its identity.
	c.mu.Lock()
	_, still := c.entries[id]
	c.mu.Unlock()
	if !still {
		return 0, fmt.Errorf("%w: surface %s destroyed during construction", surface.ErrConstruction, id)
	}

	c.logger.Info("surface created",
		"id", id,
		"modal", opts.Modal,
		"parent", parentID,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	return id, nil
}

// abort forgets an identity that never became live and destroys its
// surface. No closed push is sent for it.
func (c *Controller) abort(e *entry) {
	c.mu.Lock()
	e.state = StateClosed
	delete(c.entries, e.id)
	c.mu.Unlock()

	e.cancel()
	if err := e.surface.Close(); err != nil {
		c.logger.Warn("failed to destroy aborted surface", "id", e.id, "error", err)
	}
	close(e.done)
}

func (c *Controller) bindings(id surface.ID) channel.Bindings {
	return channel.Bindings{
		Show: func(ctx context.Context, call *ipc.Call) (any, error) {
			return nil, c.show(id, call.Args)
		},
		Close: func(ctx context.Context, call *ipc.Call) (any, error) {
			return nil, c.Close(id)
		},
		LoadURL: func(ctx context.Context, call *ipc.Call) (any, error) {
			var url string
			if err := call.Args.Decode(0, &url); err != nil {
				return nil, err
			}
			e, err := c.live(id)
			if err != nil {
				return nil, err
			}
			return ipc.Async(func(ctx context.Context) (any, error) {
				return nil, c.load(ctx, e, url)
			}), nil
		},
		Send: func(ctx context.Context, call *ipc.Call) (any, error) {
			var name string
			if err := call.Args.Decode(0, &name); err != nil {
				return nil, err
			}
			args, err := call.Args.Tail(1).Values()
			if err != nil {
				return nil, err
			}
			return nil, c.Send(id, name, args...)
		},
		Message: func(ctx context.Context, call *ipc.Call) {
			c.relay(id, call)
		},
	}
}

func (c *Controller) handleNotFound(ctx context.Context, call *ipc.Call) (any, error) {
	if id, op, ok := channel.Parse(call.Channel); ok {
		return nil, fmt.Errorf("%w: surface %s has no %s channel", surface.ErrStaleIdentity, id, op)
	}
	return nil, fmt.Errorf("%w: %q", ipc.ErrNoHandler, call.Channel)
}

// live returns the entry for id if requests may still address it.
func (c *Controller) live(id surface.ID) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.state != StateLive {
		return nil, fmt.Errorf("%w: surface %s", surface.ErrStaleIdentity, id)
	}
	return e, nil
}

// failed maps a backend error to the error reported to the peer. A surface
// that went away while the operation ran is reported as stale.
func (c *Controller) failed(e *entry, op string, err error) error {
	c.mu.Lock()
	state := e.state
	c.mu.Unlock()
	if state != StateLive || e.ctx.Err() != nil {
		return fmt.Errorf("%w: surface %s", surface.ErrStaleIdentity, e.id)
	}
	return fmt.Errorf("%s surface %s: %w", op, e.id, err)
}

type showArgs struct {
	Focused *bool `json:"focused"`
}

func (c *Controller) show(id surface.ID, args ipc.Args) error {
	focused := true
	if args.Len() > 0 {
		var a showArgs
		if err := args.Decode(0, &a); err != nil {
			return err
		}
		if a.Focused != nil {
			focused = *a.Focused
		}
	}
	return c.Show(id, focused)
}

// Show makes surface id visible. focused=false shows it without activating
// it.
func (c *Controller) Show(id surface.ID, focused bool) error {
	e, err := c.live(id)
	if err != nil {
		return err
	}
	if focused {
		err = e.surface.Show()
	} else {
		err = e.surface.ShowInactive()
	}
	if err != nil {
		return c.failed(e, "show", err)
	}
	return nil
}

// Close asks the backend to destroy surface id. It returns once the request
// is issued; teardown follows when the backend reports destruction. Only
// the first close of an identity is accepted.
func (c *Controller) Close(id surface.ID) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.state != StateLive {
		c.mu.Unlock()
		return fmt.Errorf("%w: surface %s", surface.ErrStaleIdentity, id)
	}
	e.state = StateClosing
	c.mu.Unlock()

	c.logger.Debug("surface closing", "id", id)

	// Backends may report destruction from inside Close, so no lock is held
	// here.
	if err := e.surface.Close(); err != nil {
		c.mu.Lock()
		if e.state == StateClosing {
			e.state = StateLive
		}
		c.mu.Unlock()
		return fmt.Errorf("close surface %s: %w", id, err)
	}
	return nil
}

// LoadURL replaces the content of surface id and waits for the load.
func (c *Controller) LoadURL(ctx context.Context, id surface.ID, url string) error {
	e, err := c.live(id)
	if err != nil {
		return err
	}
	return c.load(ctx, e, url)
}

func (c *Controller) load(ctx context.Context, e *entry, url string) error {
	c.mu.Lock()
	timeout := c.settings.LoadTimeout
	c.mu.Unlock()

	loadCtx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		loadCtx, cancelTimeout = context.WithTimeout(loadCtx, timeout)
		defer cancelTimeout()
	}

	err := e.surface.LoadURL(loadCtx, url)
	if e.ctx.Err() != nil {
		return fmt.Errorf("%w: surface %s closed while loading", surface.ErrStaleIdentity, e.id)
	}
	if err != nil {
		if errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: loading %s timed out after %s", surface.ErrRelay, url, timeout)
		}
		if errors.Is(err, surface.ErrRelay) {
			return err
		}
		return fmt.Errorf("%w: %w", surface.ErrRelay, err)
	}

	c.mu.Lock()
	e.url = url
	c.mu.Unlock()
	c.logger.Debug("surface loaded", "id", e.id, "url", url)
	return nil
}

// Send pushes name to the content of surface id. The identity goes first
// in the pushed arguments so content shared by several surfaces can tell
// them apart.
func (c *Controller) Send(id surface.ID, name string, args ...any) error {
	e, err := c.live(id)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: channel name is required", ipc.ErrBadRequest)
	}
	pushed := make([]any, 0, len(args)+1)
	pushed = append(pushed, uint64(id))
	pushed = append(pushed, args...)
	if err := e.surface.SendToContent(name, pushed...); err != nil {
		return c.failed(e, "send to", err)
	}
	return nil
}

// relay republishes a peer message on the top-level content unchanged.
func (c *Controller) relay(id surface.ID, call *ipc.Call) {
	c.mu.Lock()
	_, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	delivered, err := c.top.SendToContent(call.Channel, call.Args.Raw()...)
	switch {
	case err != nil:
		c.logger.Debug("message relay failed", "id", id, "error", err)
	case !delivered:
		c.logger.Debug("message dropped: no top-level surface", "id", id)
	}
}

// teardown retires id. It runs once per identity however many destruction
// signals arrive.
func (c *Controller) teardown(id surface.ID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.state == StateCreated || e.state == StateClosed {
		c.mu.Unlock()
		return
	}
	e.state = StateClosed
	delete(c.entries, id)
	c.mu.Unlock()

	e.cancel()
	if _, err := c.top.SendToContent(e.set.Closed); err != nil {
		c.logger.Debug("closed push failed", "id", id, "error", err)
	}
	c.registry.Deregister(id)
	close(e.done)

	c.logger.Info("surface closed", "id", id)
}

// Reap retires live surfaces whose backend reports them gone although no
// destruction callback arrived, and returns their identities.
func (c *Controller) Reap() []surface.ID {
	c.mu.Lock()
	candidates := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.state == StateLive || e.state == StateClosing {
			candidates = append(candidates, e)
		}
	}
	c.mu.Unlock()

	var reaped []surface.ID
	for _, e := range candidates {
		p, ok := surface.Unwrap(e.surface).(surface.Prober)
		if !ok || p.Alive() {
			continue
		}
		c.logger.Warn("surface vanished without a destruction signal", "id", e.id)
		c.teardown(e.id)
		reaped = append(reaped, e.id)
	}
	sort.Slice(reaped, func(i, j int) bool { return reaped[i] < reaped[j] })
	return reaped
}

// Wait blocks until surface id has been torn down or ctx ends. It returns
// immediately for identities that are not live.
func (c *Controller) Wait(ctx context.Context, id surface.ID) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of identities not yet torn down.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot lists the identities not yet torn down, in ascending order.
func (c *Controller) Snapshot() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Info, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, Info{
			ID:     e.id,
			State:  e.state.String(),
			Title:  e.title,
			Modal:  e.modal,
			Parent: e.parent,
			URL:    e.url,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown closes every live surface and waits for their teardown or for
// ctx to end. Creates are rejected from the moment it is called.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = true
	pending := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.state == StateLive || e.state == StateClosing {
			pending = append(pending, e)
		}
	}
	c.mu.Unlock()

	c.logger.Info("coordinator shutting down", "surfaces", len(pending))

	var errs error
	waiting := pending[:0]
	for _, e := range pending {
		err := c.Close(e.id)
		switch {
		case err == nil, errors.Is(err, surface.ErrStaleIdentity):
			waiting = append(waiting, e)
		default:
			errs = multierr.Append(errs, err)
		}
	}
	for _, e := range waiting {
		select {
		case <-e.done:
		case <-ctx.Done():
			return multierr.Append(errs, fmt.Errorf("waiting for surface %s: %w", e.id, ctx.Err()))
		}
	}
	return errs
}
