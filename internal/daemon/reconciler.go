package daemon

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/1broseidon/winbridge/internal/coordinator"
	"github.com/1broseidon/winbridge/internal/surface"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically checks for drift between the controller and the
// window system and corrects it: surfaces that disappeared without a
// destruction signal are torn down, and channel bindings left behind for
// retired identities are removed.
type Reconciler struct {
	interval time.Duration
	ctrl     *coordinator.Controller
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, ctrl *coordinator.Controller) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = reconcileInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Reconciler{
		interval: interval,
		ctrl:     ctrl,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	for _, id := range r.ctrl.Reap() {
		r.logger.Info("reconciler: retired vanished surface", "id", id)
	}

	// Registry first: an identity created after this point is not orphaned
	// just because the snapshot below misses it.
	registered := r.ctrl.Registry().IDs()
	live := make(map[surface.ID]bool)
	for _, info := range r.ctrl.Snapshot() {
		live[info.ID] = true
	}
	for _, id := range registered {
		if live[id] {
			continue
		}
		if r.ctrl.Registry().Deregister(id) {
			r.logger.Debug("reconciler: removed channel bindings of retired surface", "id", id)
		}
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
