// Package daemon wires the coordinator process together: the socket server,
// the surface controller, the window system backend and the host surface.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/winbridge/internal/config"
	"github.com/1broseidon/winbridge/internal/coordinator"
	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/platform"
	"github.com/1broseidon/winbridge/internal/runtimepath"
	"github.com/1broseidon/winbridge/internal/surface"
)

const (
	shutdownTimeout   = 5 * time.Second
	reconcileInterval = 10 * time.Second
)

// ErrAlreadyRunning is returned when another daemon holds the socket lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// ConfigPath is re-read on SIGHUP. Empty means the default location.
	ConfigPath string
	Logger     *slog.Logger
	// Level, when set, is adjusted to log_level on reload.
	Level *slog.LevelVar
	// Backend overrides the configured backend.
	Backend platform.Backend
	// ReconcileInterval defaults to 10s.
	ReconcileInterval time.Duration
	// Signals enables SIGHUP/SIGINT/SIGTERM handling.
	Signals bool
}

// Daemon is one coordinator process.
type Daemon struct {
	opts       Options
	logger     *slog.Logger
	socketPath string

	mu    sync.Mutex
	cfg   *config.Config
	ctrl  *coordinator.Controller
	host  surface.Surface
	stop  context.CancelFunc
	ready chan struct{}
}

func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	socketPath, err := cfg.ResolveSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve socket path: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Daemon{
		opts:       opts,
		logger:     logger,
		socketPath: socketPath,
		cfg:        cfg,
		ready:      make(chan struct{}),
	}, nil
}

// SocketPath returns the socket the daemon serves.
func (d *Daemon) SocketPath() string { return d.socketPath }

// Ready is closed once every component has been started. The socket
// appears shortly after.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Controller returns the surface controller, or nil before Run.
func (d *Daemon) Controller() *coordinator.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl
}

// Host returns the host surface, or nil before Run.
func (d *Daemon) Host() surface.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host
}

// Stop asks a running daemon to shut down.
func (d *Daemon) Stop() {
	d.mu.Lock()
	stop := d.stop
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Run serves until ctx is cancelled, Stop is called, a termination signal
// arrives, or the host surface closes with exit_on_close set. Live surfaces
// are closed and their peers notified before it returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.socketPath), 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	lock := flock.New(runtimepath.LockPathFor(d.socketPath))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w on %s", ErrAlreadyRunning, d.socketPath)
	}
	defer lock.Unlock()

	cfg := d.config()
	loader := &surface.Loader{}
	backend := d.opts.Backend
	if backend == nil {
		backend, err = platform.Open(cfg.Backend, cfg.Display, loader, d.logger)
		if err != nil {
			return err
		}
	}
	d.logger.Info("backend ready", "backend", backend.Name())

	router := ipc.NewRouter()
	server := ipc.NewServer(d.socketPath, router, d.logger.With("component", "ipc"))
	top := &surface.TopLevel{}
	ctrl, err := coordinator.New(coordinator.Config{
		Router:   router,
		Factory:  surface.BridgeFactory(backend.Factory(), server),
		TopLevel: top,
		Logger:   d.logger.With("component", "coordinator"),
		Settings: SettingsFrom(cfg),
	})
	if err != nil {
		backend.Stop()
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	host, err := d.createHost(runCtx, cfg.Host, backend, server, top, stop)
	if err != nil {
		backend.Stop()
		return err
	}

	d.mu.Lock()
	d.ctrl = ctrl
	d.host = host
	d.stop = stop
	d.mu.Unlock()

	// The socket outlives runCtx so that closed notifications sent during
	// shutdown still reach the peers.
	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return server.Serve(serveCtx)
	})
	g.Go(func() error {
		return backend.Run()
	})
	g.Go(func() error {
		interval := d.opts.ReconcileInterval
		if interval <= 0 {
			interval = reconcileInterval
		}
		NewReconciler(ReconcilerConfig{Interval: interval, Logger: d.logger}, ctrl).Run(gctx)
		return nil
	})
	if d.opts.Signals {
		g.Go(func() error {
			d.handleSignals(gctx, stop)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		err := d.shutdown(ctrl, host)
		stopServing()
		backend.Stop()
		return err
	})

	d.logger.Info("winbridge daemon started", "socket", d.socketPath)
	close(d.ready)

	err = g.Wait()
	d.logger.Info("winbridge daemon stopped")
	return err
}

func (d *Daemon) createHost(ctx context.Context, hc config.HostConfig, backend platform.Backend, sink surface.ContentSink, top *surface.TopLevel, stop context.CancelFunc) (surface.Surface, error) {
	show := hc.Show
	raw, err := backend.Factory().Create(surface.Options{
		Title:  hc.Title,
		Width:  hc.Width,
		Height: hc.Height,
		Show:   &show,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create host surface: %w", err)
	}

	host := surface.Bridge(raw, sink)
	top.Set(host)
	raw.OnDestroyed(func() {
		top.ClearIf(host)
		d.logger.Info("host surface closed", "exit_on_close", hc.ExitOnClose)
		if hc.ExitOnClose {
			stop()
		}
	})

	if hc.URL != "" {
		go func() {
			if err := raw.LoadURL(ctx, hc.URL); err != nil {
				d.logger.Warn("failed to load host url", "url", hc.URL, "error", err)
			}
		}()
	}
	return host, nil
}

func (d *Daemon) shutdown(ctrl *coordinator.Controller, host surface.Surface) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := ctrl.Shutdown(ctx)
	if closeErr := host.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close host surface: %w", closeErr))
	}
	if err != nil {
		d.logger.Error("shutdown incomplete", "error", err)
	}
	return err
}

func (d *Daemon) handleSignals(ctx context.Context, stop context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := d.Reload(); err != nil {
					d.logger.Error("config reload failed", "error", err)
				}
				continue
			}
			d.logger.Info("shutting down", "signal", sig.String())
			stop()
			return
		}
	}
}

// Reload re-reads the configuration file and applies what can change at
// runtime: log level, surface defaults and limits.
func (d *Daemon) Reload() error {
	path := d.opts.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}
	cfg := res.Config

	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	ctrl := d.ctrl
	d.mu.Unlock()

	if d.opts.Level != nil {
		d.opts.Level.Set(cfg.SlogLevel())
	}
	if ctrl != nil {
		ctrl.Reconfigure(SettingsFrom(cfg))
	}
	if cfg.Backend != old.Backend || cfg.SocketPath != old.SocketPath || cfg.Display != old.Display || cfg.Host != old.Host {
		d.logger.Warn("backend, socket and host changes take effect after a restart")
	}
	d.logger.Info("configuration reloaded", "path", path, "log_level", cfg.LogLevel)
	return nil
}

func (d *Daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SettingsFrom extracts the runtime-adjustable coordinator settings.
func SettingsFrom(cfg *config.Config) coordinator.Settings {
	return coordinator.Settings{
		Defaults: surface.Defaults{
			Width:  cfg.Defaults.Width,
			Height: cfg.Defaults.Height,
		},
		MaxSurfaces: cfg.Limits.MaxSurfaces,
		LoadTimeout: cfg.LoadTimeout(),
	}
}

// NewLogger builds the daemon logger in the configured format.
func NewLogger(w io.Writer, format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
