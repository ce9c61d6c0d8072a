// Package reaper terminates sessions idle past the configured threshold,
// reconciles journal and engine state left behind by a previous daemon run
// at startup, and watches live containers for silent deaths.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/internal/registry"
	"github.com/codecrate/codecrate/internal/store"
)

// SessionManager is the termination path the reaper drives.
type SessionManager interface {
	Terminate(ctx context.Context, id string, deleteVolume bool) error
	Remove(id string)
}

// Engine is the slice of the container engine used for reconciliation and
// liveness checks.
type Engine interface {
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)
	ListSessionContainers(ctx context.Context) ([]engine.ContainerInfo, error)
	StopAndRemove(ctx context.Context, containerID string) error
}

// Journal is the persistent session table read back at startup.
type Journal interface {
	ListActiveSessions() ([]*store.SessionRecord, error)
	UpdateSessionState(id, state, errorCode, containerID string) error
}

type Reaper struct {
	registry *registry.Registry
	manager  SessionManager
	journal  Journal
	engine   Engine

	idleThreshold time.Duration
	interval      time.Duration
	logger        *slog.Logger
}

func New(reg *registry.Registry, mgr SessionManager, jrnl Journal, eng Engine, idleThreshold, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		registry:      reg,
		manager:       mgr,
		journal:       jrnl,
		engine:        eng,
		idleThreshold: idleThreshold,
		interval:      interval,
		logger:        logger,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "idle_threshold", r.idleThreshold)

	r.reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.reapIdle(ctx)
			r.checkLiveness(ctx)
		}
	}
}

// reapIdle terminates sessions idle past the threshold, then removes their
// registry entries. The per-session volume survives: an idle reap is not a
// data deletion.
func (r *Reaper) reapIdle(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.idleThreshold)
	idle := r.registry.IdleBefore(cutoff)

	for _, sess := range idle {
		r.logger.Info("reaping idle session", "session_id", sess.ID, "last_activity", sess.LastActivity)

		if err := r.manager.Terminate(ctx, sess.ID, false); err != nil {
			r.logger.Error("reaper: terminate", "session_id", sess.ID, "error", err)
			continue
		}
		r.manager.Remove(sess.ID)
	}

	if len(idle) > 0 {
		r.logger.Info("reaper: reaped sessions", "count", len(idle))
	}
}

// reconcile runs once at startup. Journal rows still marked active belong
// to a previous daemon run; their registry entries are gone, so the
// sessions are unreachable. Their containers are torn down and the rows
// closed out. Workspace volumes survive, like an idle reap. Labeled
// containers with no journal row at all are removed the same way.
func (r *Reaper) reconcile(ctx context.Context) {
	r.logger.Info("reconciliation starting")

	stale := make(map[string]bool)
	records, err := r.journal.ListActiveSessions()
	if err != nil {
		r.logger.Error("reconcile: journal read", "error", err)
	}
	for _, rec := range records {
		if _, regErr := r.registry.Get(rec.ID); regErr == nil {
			continue
		}
		if rec.ContainerID != "" {
			if err := r.engine.StopAndRemove(ctx, rec.ContainerID); err != nil {
				r.logger.Warn("reconcile: stop stale container", "session_id", rec.ID, "error", err)
			}
		}
		if err := r.journal.UpdateSessionState(rec.ID, string(registry.StateTerminated), "", rec.ContainerID); err != nil {
			r.logger.Warn("reconcile: close stale row", "session_id", rec.ID, "error", err)
		}
		stale[rec.ID] = true
		r.logger.Info("reconcile: closed stale session", "session_id", rec.ID, "prev_state", rec.State)
	}

	containers, err := r.engine.ListSessionContainers(ctx)
	if err != nil {
		r.logger.Warn("reconcile: container list", "error", err)
	}
	for _, ctr := range containers {
		if stale[ctr.SessionID] {
			continue
		}
		if _, regErr := r.registry.Get(ctr.SessionID); regErr == nil {
			continue
		}
		r.logger.Warn("reconcile: removing orphaned container", "container_id", ctr.ContainerID, "session_id", ctr.SessionID)
		if err := r.engine.StopAndRemove(ctx, ctr.ContainerID); err != nil {
			r.logger.Warn("reconcile: stop orphan", "container_id", ctr.ContainerID, "error", err)
		}
	}

	r.logger.Info("reconciliation complete")
}

// checkLiveness flags ready sessions whose containers died underneath
// them, so the registry never advertises a dead sandbox. A passing check
// is recorded as a readiness probe.
func (r *Reaper) checkLiveness(ctx context.Context) {
	for _, sess := range r.registry.List() {
		if sess.State != registry.StateReady || sess.ContainerID == "" {
			continue
		}
		running, err := r.engine.IsContainerRunning(ctx, sess.ContainerID)
		if err != nil {
			r.logger.Warn("liveness: container check", "session_id", sess.ID, "error", err)
			continue
		}
		if !running {
			r.logger.Warn("liveness: container gone, marking error", "session_id", sess.ID)
			r.registry.SetState(sess.ID, registry.StateError, registry.ReasonCreateFailed)
			continue
		}
		r.registry.TouchReadyCheck(sess.ID)
	}
}
