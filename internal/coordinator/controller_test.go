package coordinator

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1broseidon/winbridge/internal/channel"
	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/surface"
	"github.com/1broseidon/winbridge/internal/surface/headless"
)

type harness struct {
	t       *testing.T
	router  *ipc.Router
	server  *ipc.Server
	ctrl    *Controller
	factory *headless.Factory
	host    *headless.Surface
	ctx     context.Context
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	return newHarnessWithFactory(t, settings, nil)
}

func newHarnessWithFactory(t *testing.T, settings Settings, wrap func(surface.Factory) surface.Factory) *harness {
	t.Helper()
	router := ipc.NewRouter()
	server := ipc.NewServer("", router, nil)
	factory := headless.New()

	hostSurface, err := headless.New().Create(surface.Options{Title: "host"}, nil)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	top := &surface.TopLevel{}
	top.Set(surface.Bridge(hostSurface, server))

	var f surface.Factory = factory
	if wrap != nil {
		f = wrap(factory)
	}
	ctrl, err := New(Config{
		Router:   router,
		Factory:  f,
		TopLevel: top,
		Settings: settings,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &harness{
		t:       t,
		router:  router,
		server:  server,
		ctrl:    ctrl,
		factory: factory,
		host:    hostSurface.(*headless.Surface),
		ctx:     ctx,
	}
}

func (h *harness) connect() *ipc.Client {
	h.t.Helper()
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	before := h.server.ConnCount()
	go func() {
		h.server.ServeConn(h.ctx, serverSide)
		close(done)
	}()
	client := ipc.NewClient(clientSide)
	h.t.Cleanup(func() {
		client.Close()
		<-done
	})
	waitFor(h.t, func() bool { return h.server.ConnCount() > before })
	return client
}

func (h *harness) create(client *ipc.Client, opts any) surface.ID {
	h.t.Helper()
	res, err := client.Invoke(context.Background(), channel.Create, opts)
	if err != nil {
		h.t.Fatalf("create: %v", err)
	}
	var id surface.ID
	if err := res.Decode(&id); err != nil {
		h.t.Fatalf("decode id: %v", err)
	}
	if id == 0 {
		h.t.Fatalf("create returned the zero identity")
	}
	return id
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func countPushes(client *ipc.Client, name string) *atomic.Int32 {
	var n atomic.Int32
	client.On(name, func(ipc.Args) { n.Add(1) })
	return &n
}

func TestCreateThenOperate(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	ctx := context.Background()

	hidden := false
	id := h.create(client, surface.Options{Width: 300, Height: 300, Show: &hidden})
	s := h.factory.Last()
	if s.Visible() {
		t.Fatalf("surface created with show=false is visible")
	}

	set, ok := h.ctrl.Registry().Lookup(id)
	if !ok {
		t.Fatalf("no channel set registered for %s", id)
	}
	for _, name := range []string{set.Show, set.Close, set.LoadURL, set.Send} {
		if !h.router.HasHandler(name) {
			t.Fatalf("%s not bound", name)
		}
	}

	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL), "data:,hello"); err != nil {
		t.Fatalf("loadURL: %v", err)
	}
	if s.URL() != "data:,hello" {
		t.Fatalf("url = %q", s.URL())
	}

	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow), map[string]any{"focused": false}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !s.Visible() || s.Focused() {
		t.Fatalf("visible=%v focused=%v after unfocused show", s.Visible(), s.Focused())
	}
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow)); err != nil {
		t.Fatalf("show without options: %v", err)
	}
	if !s.Focused() {
		t.Fatalf("show without options should focus")
	}

	info := h.ctrl.Snapshot()
	if len(info) != 1 || info[0].ID != id || info[0].State != "live" || info[0].URL != "data:,hello" {
		t.Fatalf("snapshot = %+v", info)
	}
}

func TestCreateAppliesDefaultsAndExtra(t *testing.T) {
	h := newHarness(t, Settings{Defaults: surface.Defaults{Width: 640, Height: 480}})
	client := h.connect()

	h.create(client, map[string]any{"height": 200, "frame": false})
	opts := h.factory.Last().Options()
	if opts.Width != 640 || opts.Height != 200 {
		t.Fatalf("size = %dx%d", opts.Width, opts.Height)
	}
	if v, ok := opts.Extra["frame"]; !ok || v != false {
		t.Fatalf("unrecognized option not passed through: %v", opts.Extra)
	}
}

func TestCreateModalUsesTopLevelParent(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	parent := h.create(client, surface.Options{})
	h.create(client, surface.Options{Modal: true, Parent: parent})

	top, _ := h.ctrl.TopLevel().Get()
	if got := h.factory.Last().Parent(); got != top {
		t.Fatalf("modal parent = %v, want the top-level surface", got)
	}

	h.ctrl.TopLevel().Clear()
	h.create(client, surface.Options{Modal: true})
	if got := h.factory.Last().Parent(); got != nil {
		t.Fatalf("modal parent without top-level = %v, want none", got)
	}
}

func TestCreateExplicitParent(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	parent := h.create(client, surface.Options{})
	parentSurface := h.factory.Last()
	h.create(client, surface.Options{Parent: parent})
	if h.factory.Last().Parent() != surface.Surface(parentSurface) {
		t.Fatalf("explicit parent not passed to backend")
	}

	_, err := client.Invoke(context.Background(), channel.Create, surface.Options{Parent: 999})
	if !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("unknown parent err = %v, want ErrConstruction", err)
	}
}

func TestCreateFailureLeavesNothingBehind(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	h.factory.FailNext(errors.New("out of resources"))
	_, err := client.Invoke(context.Background(), channel.Create, surface.Options{})
	if !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("err = %v, want ErrConstruction", err)
	}
	if _, err := client.Invoke(context.Background(), channel.Create, surface.Options{Width: -1}); !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("invalid options err = %v, want ErrConstruction", err)
	}
	if _, err := client.Invoke(context.Background(), channel.Create, "not options"); !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("bad payload err = %v, want ErrConstruction", err)
	}
	if h.ctrl.Len() != 0 || h.ctrl.Registry().Len() != 0 {
		t.Fatalf("failed creates leaked state: len=%d registry=%d", h.ctrl.Len(), h.ctrl.Registry().Len())
	}

	id := h.create(client, surface.Options{})
	if id != 1 {
		t.Fatalf("first successful create got %s, want 1", id)
	}
}

func TestSurfaceDestroyedDuringCreate(t *testing.T) {
	h := newHarnessWithFactory(t, Settings{}, func(f surface.Factory) surface.Factory {
		return surface.FactoryFunc(func(opts surface.Options, parent surface.Surface) (surface.Surface, error) {
			s, err := f.Create(opts, parent)
			if err != nil {
				return nil, err
			}
			s.(*headless.Surface).Destroy()
			return s, nil
		})
	})
	client := h.connect()

	_, err := client.Invoke(context.Background(), channel.Create, surface.Options{})
	if !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("err = %v, want ErrConstruction", err)
	}
	if h.ctrl.Len() != 0 || h.ctrl.Registry().Len() != 0 {
		t.Fatalf("destroyed surface left state: len=%d registry=%d", h.ctrl.Len(), h.ctrl.Registry().Len())
	}
	for _, name := range channel.NewSet(1).Names() {
		if h.router.HasHandler(name) || h.router.ListenerCount(name) != 0 {
			t.Fatalf("%s still bound", name)
		}
	}
}

func TestCloseTearsDownOnce(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	ctx := context.Background()

	id := h.create(client, surface.Options{})
	closed := countPushes(client, channel.Name(id, channel.OpClosed))

	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpClose)); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, func() bool { return closed.Load() == 1 })

	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpClose)); !errors.Is(err, surface.ErrStaleIdentity) {
		t.Fatalf("second close err = %v, want ErrStaleIdentity", err)
	}
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow)); !errors.Is(err, surface.ErrStaleIdentity) {
		t.Fatalf("show after close err = %v, want ErrStaleIdentity", err)
	}
	h.factory.Last().Destroy()

	if _, ok := h.ctrl.Registry().Lookup(id); ok {
		t.Fatalf("channel set still registered")
	}
	for _, name := range channel.NewSet(id).Names() {
		if h.router.HasHandler(name) || h.router.ListenerCount(name) != 0 {
			t.Fatalf("%s still bound", name)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if n := closed.Load(); n != 1 {
		t.Fatalf("closed pushed %d times, want 1", n)
	}
}

func TestExternalDestructionTearsDown(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	id := h.create(client, surface.Options{})
	closed := countPushes(client, channel.Name(id, channel.OpClosed))

	h.factory.Last().Destroy()
	waitFor(t, func() bool { return closed.Load() == 1 })

	if h.ctrl.Len() != 0 {
		t.Fatalf("identity not retired")
	}
	if _, err := client.Invoke(context.Background(), channel.Name(id, channel.OpLoadURL), "about:blank"); !errors.Is(err, surface.ErrStaleIdentity) {
		t.Fatalf("loadURL after destruction err = %v, want ErrStaleIdentity", err)
	}
}

func TestConcurrentCloseAndDestroyPushOnce(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	other := h.connect()

	const n = 8
	ids := make([]surface.ID, n)
	counters := make([]*atomic.Int32, n)
	for i := range ids {
		ids[i] = h.create(client, surface.Options{})
		counters[i] = countPushes(client, channel.Name(ids[i], channel.OpClosed))
	}
	surfaces := h.factory.Surfaces()

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(3)
		go func() {
			defer wg.Done()
			client.Invoke(context.Background(), channel.Name(id, channel.OpClose))
		}()
		go func() {
			defer wg.Done()
			other.Invoke(context.Background(), channel.Name(id, channel.OpClose))
		}()
		go func() {
			defer wg.Done()
			surfaces[i].Destroy()
		}()
	}
	wg.Wait()

	for i := range ids {
		waitFor(t, func() bool { return counters[i].Load() >= 1 })
	}
	time.Sleep(20 * time.Millisecond)
	for i, c := range counters {
		if got := c.Load(); got != 1 {
			t.Fatalf("surface %s: closed pushed %d times", ids[i], got)
		}
	}
	if h.ctrl.Registry().Len() != 0 {
		t.Fatalf("registry not empty: %v", h.ctrl.Registry().IDs())
	}
}

type stubbornSurface struct {
	*headless.Surface
	refuse atomic.Bool
}

func (s *stubbornSurface) Close() error {
	if s.refuse.Load() {
		return errors.New("close vetoed")
	}
	return s.Surface.Close()
}

func TestFailedCloseKeepsSurfaceLive(t *testing.T) {
	var stubborn *stubbornSurface
	h := newHarnessWithFactory(t, Settings{}, func(f surface.Factory) surface.Factory {
		return surface.FactoryFunc(func(opts surface.Options, parent surface.Surface) (surface.Surface, error) {
			s, err := f.Create(opts, parent)
			if err != nil {
				return nil, err
			}
			stubborn = &stubbornSurface{Surface: s.(*headless.Surface)}
			stubborn.refuse.Store(true)
			return stubborn, nil
		})
	})
	client := h.connect()
	ctx := context.Background()

	id := h.create(client, surface.Options{})
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpClose)); err == nil {
		t.Fatalf("vetoed close reported success")
	}
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow)); err != nil {
		t.Fatalf("surface should stay live after a vetoed close: %v", err)
	}

	stubborn.refuse.Store(false)
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpClose)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.ctrl.Len() != 0 {
		t.Fatalf("surface not torn down")
	}
}

func TestLoadURLSuspendsWithoutBlocking(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	ctx := context.Background()

	id := h.create(client, surface.Options{})
	s := h.factory.Last()
	release := make(chan struct{})
	s.SetLoadHook(func(ctx context.Context, url string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	loaded := make(chan error, 1)
	go func() {
		_, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL), "https://example.invalid/")
		loaded <- err
	}()

	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow), map[string]any{"focused": true}); err != nil {
		t.Fatalf("show during load: %v", err)
	}
	select {
	case err := <-loaded:
		t.Fatalf("load settled early: %v", err)
	default:
	}

	close(release)
	if err := <-loaded; err != nil {
		t.Fatalf("loadURL: %v", err)
	}
}

func TestLoadURLSettlesWhenSurfaceCloses(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	ctx := context.Background()

	id := h.create(client, surface.Options{})
	s := h.factory.Last()
	started := make(chan struct{})
	s.SetLoadHook(func(ctx context.Context, url string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	loaded := make(chan error, 1)
	go func() {
		_, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL), "https://example.invalid/")
		loaded <- err
	}()
	<-started

	s.Destroy()
	select {
	case err := <-loaded:
		if !errors.Is(err, surface.ErrStaleIdentity) {
			t.Fatalf("err = %v, want ErrStaleIdentity", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending loadURL never settled")
	}
}

func TestLoadURLFailures(t *testing.T) {
	h := newHarness(t, Settings{LoadTimeout: 50 * time.Millisecond})
	client := h.connect()
	ctx := context.Background()

	id := h.create(client, surface.Options{})
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL), "gopher://nowhere"); !errors.Is(err, surface.ErrRelay) {
		t.Fatalf("unsupported scheme err = %v, want ErrRelay", err)
	}
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL)); !errors.Is(err, ipc.ErrBadRequest) {
		t.Fatalf("missing url err = %v, want ErrBadRequest", err)
	}

	h.factory.Last().SetLoadHook(func(ctx context.Context, url string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpLoadURL), "https://slow.invalid/"); !errors.Is(err, surface.ErrRelay) {
		t.Fatalf("timed out load err = %v, want ErrRelay", err)
	}
	if _, err := client.Invoke(ctx, channel.Name(id, channel.OpShow)); err != nil {
		t.Fatalf("failed loads must not retire the surface: %v", err)
	}
}

func TestSendPrependsIdentity(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	id := h.create(client, surface.Options{})
	payload := map[string]any{"content": "Hello World"}
	if _, err := client.Invoke(context.Background(), channel.Name(id, channel.OpSend), "initialize", payload, "extra"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := h.factory.Last().Messages()
	if len(msgs) != 1 || msgs[0].Channel != "initialize" {
		t.Fatalf("messages = %+v", msgs)
	}
	args := msgs[0].Args
	if len(args) != 3 || args[0] != uint64(id) || args[2] != "extra" {
		t.Fatalf("args = %#v", args)
	}
	if m, ok := args[1].(map[string]any); !ok || m["content"] != "Hello World" {
		t.Fatalf("payload = %#v", args[1])
	}
}

func TestMessageRelayedToTopLevel(t *testing.T) {
	h := newHarness(t, Settings{})
	sender := h.connect()
	watcher := h.connect()

	id := h.create(sender, surface.Options{})
	name := channel.Name(id, channel.OpMessage)

	got := make(chan []any, 1)
	watcher.On(name, func(args ipc.Args) {
		values, err := args.Values()
		if err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- values
	})

	if err := sender.Send(name, "ping", 7, []any{"a", true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case values := <-got:
		if len(values) != 3 || values[0] != "ping" || values[1] != uint64(7) {
			t.Fatalf("relayed %#v", values)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not relayed")
	}
}

func TestPushesDroppedWithoutTopLevel(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	h.ctrl.TopLevel().Clear()

	id := h.create(client, surface.Options{})
	closed := countPushes(client, channel.Name(id, channel.OpClosed))

	if err := client.Send(channel.Name(id, channel.OpMessage), "lost"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := client.Invoke(context.Background(), channel.Name(id, channel.OpClose)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.ctrl.Registry().Len() != 0 {
		t.Fatalf("teardown must complete without a top-level surface")
	}
	time.Sleep(20 * time.Millisecond)
	if closed.Load() != 0 {
		t.Fatalf("closed pushed with no top-level surface")
	}
}

func TestUnknownChannels(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()
	ctx := context.Background()

	if _, err := client.Invoke(ctx, "42_show"); !errors.Is(err, surface.ErrStaleIdentity) {
		t.Fatalf("unknown identity err = %v, want ErrStaleIdentity", err)
	}
	if _, err := client.Invoke(ctx, "resize"); !errors.Is(err, ipc.ErrNoHandler) {
		t.Fatalf("unknown channel err = %v, want ErrNoHandler", err)
	}
}

func TestMaxSurfaces(t *testing.T) {
	h := newHarness(t, Settings{MaxSurfaces: 2})
	client := h.connect()

	first := h.create(client, surface.Options{})
	h.create(client, surface.Options{})
	if _, err := client.Invoke(context.Background(), channel.Create, surface.Options{}); !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("err = %v, want ErrConstruction", err)
	}

	if _, err := client.Invoke(context.Background(), channel.Name(first, channel.OpClose)); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.create(client, surface.Options{})

	h.ctrl.Reconfigure(Settings{})
	h.create(client, surface.Options{})
}

func TestConcurrentPeersGetDistinctIdentities(t *testing.T) {
	h := newHarness(t, Settings{})
	peers := []*ipc.Client{h.connect(), h.connect()}

	var wg sync.WaitGroup
	ids := make([]surface.ID, len(peers))
	errs := make([]error, len(peers))
	for i, p := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Invoke(context.Background(), channel.Create, surface.Options{Width: 100 * (i + 1)})
			if err == nil {
				err = res.Decode(&ids[i])
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if ids[0] == ids[1] {
		t.Fatalf("both peers got identity %s", ids[0])
	}

	for i, p := range peers {
		if _, err := p.Invoke(context.Background(), channel.Name(ids[i], channel.OpSend), "hello", i); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for _, s := range h.factory.Surfaces() {
		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("surface got %d messages, want 1", len(msgs))
		}
		width := s.Options().Width
		peer := msgs[0].Args[1].(uint64)
		if width != 100*(int(peer)+1) {
			t.Fatalf("message from peer %d delivered to the other peer's surface", peer)
		}
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	h := newHarness(t, Settings{})
	client := h.connect()

	for range 3 {
		h.create(client, surface.Options{})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, s := range h.factory.Surfaces() {
		if !s.Destroyed() {
			t.Fatalf("surface survived shutdown")
		}
	}
	if _, err := client.Invoke(context.Background(), channel.Create, surface.Options{}); !errors.Is(err, surface.ErrConstruction) {
		t.Fatalf("create after shutdown err = %v, want ErrConstruction", err)
	}
}

func TestInProcessAPI(t *testing.T) {
	h := newHarness(t, Settings{})

	id, err := h.ctrl.Create(surface.Options{Title: "local"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.ctrl.LoadURL(context.Background(), id, "about:blank"); err != nil {
		t.Fatalf("LoadURL: %v", err)
	}
	if err := h.ctrl.Show(id, false); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := h.ctrl.Close(id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.ctrl.Wait(context.Background(), id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := h.ctrl.Close(id); !errors.Is(err, surface.ErrStaleIdentity) {
		t.Fatalf("second Close err = %v", err)
	}
}

func TestReapRetiresVanishedSurfaces(t *testing.T) {
	h := newHarnessWithFactory(t, Settings{}, func(f surface.Factory) surface.Factory {
		return surface.BridgeFactory(f, discardSink{})
	})
	client := h.connect()

	keep := h.create(client, surface.Options{})
	gone := h.create(client, surface.Options{})
	closed := countPushes(client, channel.Name(gone, channel.OpClosed))

	if reaped := h.ctrl.Reap(); len(reaped) != 0 {
		t.Fatalf("Reap with healthy surfaces = %v", reaped)
	}

	h.factory.Last().Vanish()
	reaped := h.ctrl.Reap()
	if len(reaped) != 1 || reaped[0] != gone {
		t.Fatalf("Reap = %v, want [%s]", reaped, gone)
	}
	waitFor(t, func() bool { return closed.Load() == 1 })

	if h.ctrl.Len() != 1 || h.ctrl.Snapshot()[0].ID != keep {
		t.Fatalf("snapshot after reap = %+v", h.ctrl.Snapshot())
	}
	if _, ok := h.ctrl.Registry().Lookup(gone); ok {
		t.Fatal("reaped identity still registered")
	}
}

// discardSink discards content pushes of bridged child surfaces.
type discardSink struct{}

func (discardSink) Emit(string, ...any) error { return nil }
