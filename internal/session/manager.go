// Package session orchestrates the sandbox lifecycle: registry entry,
// image and volume resolution, container create/start, readiness probing,
// and teardown. Container engine failures never leave this package raw;
// they are mapped to the registry's typed reason codes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codecrate/codecrate/internal/config"
	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/internal/registry"
	"github.com/codecrate/codecrate/internal/store"
)

const (
	imageResolveTimeout = 5 * time.Minute
	volumeSetupTimeout  = 2 * time.Minute
	containerOpTimeout  = 30 * time.Second
)

type Manager struct {
	cfg      *config.Config
	registry *registry.Registry
	journal  Journal
	engine   Engine
	logger   *slog.Logger

	// Per-session mutexes so create/terminate for one session serialize
	// without stalling other sessions.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

func NewManager(cfg *config.Config, reg *registry.Registry, jrnl Journal, eng Engine, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: reg,
		journal:  jrnl,
		engine:   eng,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

// CleanupSessionLock drops the per-session mutex; called after the session
// entry is removed.
func (m *Manager) CleanupSessionLock(id string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, id)
}

// View is the client-facing snapshot of a session.
type View struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	State     string    `json:"state"`
	Ready     bool      `json:"ready"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toView(s registry.Session) *View {
	return &View{
		ID:        s.ID,
		UserID:    s.UserID,
		State:     string(s.State),
		Ready:     s.State == registry.StateReady,
		Error:     s.ErrorCode,
		CreatedAt: s.CreatedAt,
	}
}

// Create registers a new session for userID and starts provisioning in the
// background. The returned view is in state pending; clients poll Status
// until ready or error.
func (m *Manager) Create(ctx context.Context, userID string) (*View, error) {
	id := uuid.New().String()[:12]

	sess, created := m.registry.Register(registry.Session{
		ID:     id,
		UserID: userID,
		Image:  m.cfg.Image,
	})
	if !created {
		// uuid collision is not a thing we handle gracefully
		return nil, fmt.Errorf("session id collision: %s", id)
	}

	if err := m.journal.CreateSession(&store.SessionRecord{
		ID:           id,
		UserID:       userID,
		Image:        m.cfg.Image,
		State:        string(registry.StatePending),
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}); err != nil {
		m.registry.Remove(id)
		return nil, fmt.Errorf("journal session: %w", err)
	}

	// Provisioning runs detached from the request context; each engine
	// step carries its own deadline.
	go m.provision(context.Background(), id)

	m.logger.Info("session created", "session_id", id, "user_id", userID)
	return toView(sess), nil
}

// EnsureContainer triggers or confirms container creation; idempotent.
// A session already ready is a no-op. A session mid-provisioning waits its
// turn on the per-session lock and then observes the outcome.
func (m *Manager) EnsureContainer(ctx context.Context, id string) (*View, error) {
	if _, err := m.registry.Get(id); err != nil {
		return nil, err
	}
	// Detached from the request: a client giving up must not abort a
	// provisioning run that would otherwise succeed.
	m.provision(context.WithoutCancel(ctx), id)
	sess, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return toView(sess), nil
}

// provision drives the state machine pending→creating→starting→probing→
// ready, holding the session lock for the duration so a second create can
// never spawn a second container.
func (m *Manager) provision(ctx context.Context, id string) {
	mu := m.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.registry.Get(id)
	if err != nil {
		return
	}
	if sess.State.Terminal() {
		// Ready: idempotent no-op. Error/terminated: the client saw a
		// terminal state; re-creating is an explicit new session.
		return
	}

	m.setState(id, registry.StateCreating, "")

	// Image and volume resolve in parallel; both are prerequisites for
	// container create.
	var (
		wg       sync.WaitGroup
		imageErr error
		volName  string
		volErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		imgCtx, cancel := context.WithTimeout(ctx, imageResolveTimeout)
		defer cancel()
		imageErr = m.engine.EnsureImage(imgCtx, sess.Image)
	}()
	go func() {
		defer wg.Done()
		volCtx, cancel := context.WithTimeout(ctx, volumeSetupTimeout)
		defer cancel()
		var cloneErr error
		volName, _, cloneErr = m.engine.EnsureWorkspaceVolume(volCtx, id, engine.CloneOpts{
			TemplateVolume: m.cfg.TemplateVolume,
			HelperImage:    m.cfg.HelperImage,
		})
		if volName == "" {
			volErr = cloneErr
		} else if cloneErr != nil {
			// An empty workspace is still usable; a failed clone is a
			// warning, not a session error.
			m.logger.Warn("template clone failed", "session_id", id, "error", cloneErr)
		}
	}()
	wg.Wait()

	if imageErr != nil {
		reason := registry.ReasonCreateFailed
		if errors.Is(imageErr, engine.ErrImageUnavailable) {
			reason = registry.ReasonImageUnavailable
		}
		m.failProvision(id, reason, imageErr)
		return
	}
	if volErr != nil {
		m.failProvision(id, registry.ReasonCreateFailed, volErr)
		return
	}

	m.registry.SetVolume(id, volName)
	if err := m.journal.UpdateSessionVolume(id, volName); err != nil {
		m.logger.Error("journal volume", "session_id", id, "error", err)
	}

	createCtx, cancel := context.WithTimeout(ctx, containerOpTimeout)
	containerID, err := m.engine.CreateContainer(createCtx, engine.CreateOpts{
		SessionID:     id,
		Image:         sess.Image,
		VolumeName:    volName,
		WorkspacePath: m.cfg.WorkspacePath,
		Limits:        m.cfg.Limits,
	})
	cancel()
	if err != nil {
		m.failProvision(id, registry.ReasonCreateFailed, err)
		return
	}
	m.registry.SetContainer(id, containerID)

	m.setState(id, registry.StateStarting, "")
	startCtx, cancel := context.WithTimeout(ctx, containerOpTimeout)
	err = m.engine.StartContainer(startCtx, containerID)
	cancel()
	if err != nil {
		m.engine.StopAndRemove(context.WithoutCancel(ctx), containerID)
		m.failProvision(id, registry.ReasonCreateFailed, err)
		return
	}

	m.setState(id, registry.StateProbing, "")
	timeout := time.Duration(m.cfg.Readiness.TimeoutSeconds) * time.Second
	poll := time.Duration(m.cfg.Readiness.PollIntervalMs) * time.Millisecond
	probeCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	err = m.engine.WaitReady(probeCtx, containerID, timeout, poll)
	cancel()
	if err != nil {
		reason := registry.ReasonCreateFailed
		if errors.Is(err, engine.ErrReadyTimeout) {
			reason = registry.ReasonReadyTimeout
		}
		m.failProvision(id, reason, err)
		return
	}

	m.setState(id, registry.StateReady, "")
	m.logger.Info("session ready", "session_id", id, "container_id", containerID)
}

func (m *Manager) failProvision(id, reason string, cause error) {
	m.logger.Error("session provisioning failed", "session_id", id, "reason", reason, "error", cause)
	m.setState(id, registry.StateError, reason)
}

// setState updates the registry and writes the journal through.
func (m *Manager) setState(id string, state registry.State, errorCode string) {
	if err := m.registry.SetState(id, state, errorCode); err != nil {
		m.logger.Error("set state", "session_id", id, "state", state, "error", err)
		return
	}
	sess, err := m.registry.Get(id)
	if err != nil {
		return
	}
	if err := m.journal.UpdateSessionState(id, string(state), errorCode, sess.ContainerID); err != nil {
		m.logger.Error("journal state", "session_id", id, "error", err)
	}
}

// journalView renders a persisted row the registry no longer tracks. No
// registry entry means no live container handle, so the session is never
// advertised ready regardless of what the row last recorded.
func journalView(rec *store.SessionRecord) *View {
	return &View{
		ID:        rec.ID,
		UserID:    rec.UserID,
		State:     rec.State,
		Ready:     false,
		Error:     rec.ErrorCode,
		CreatedAt: rec.CreatedAt,
	}
}

// Status returns the registry view clients poll. Ids the registry has
// never seen fall back to the journal, so a client polling across a daemon
// restart gets the session's last recorded state instead of a 404.
func (m *Manager) Status(id string) (*View, error) {
	sess, err := m.registry.Get(id)
	if err == nil {
		return toView(sess), nil
	}
	rec, jerr := m.journal.GetSession(id)
	if jerr != nil {
		return nil, err
	}
	return journalView(rec), nil
}

// List returns the user's sessions, newest first, straight from the
// journal with live registry state overlaid where present.
func (m *Manager) List(userID string) []*View {
	records, err := m.journal.ListSessionsByUser(userID)
	if err != nil {
		m.logger.Error("journal list", "user_id", userID, "error", err)
		return nil
	}
	views := make([]*View, 0, len(records))
	for _, rec := range records {
		if sess, err := m.registry.Get(rec.ID); err == nil {
			views = append(views, toView(sess))
			continue
		}
		views = append(views, journalView(rec))
	}
	return views
}

// Terminate stops and removes the session container. The workspace volume
// is preserved unless deleteVolume is set.
func (m *Manager) Terminate(ctx context.Context, id string, deleteVolume bool) error {
	mu := m.sessionLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.registry.Get(id)
	if err != nil {
		return err
	}

	if sess.ContainerID != "" {
		if err := m.engine.StopAndRemove(ctx, sess.ContainerID); err != nil {
			m.logger.Error("stop container", "session_id", id, "error", err)
		}
	}
	if deleteVolume {
		if err := m.engine.RemoveWorkspaceVolume(ctx, id); err != nil {
			m.logger.Error("remove volume", "session_id", id, "error", err)
		}
	}

	m.registry.SetState(id, registry.StateTerminated, "")
	if err := m.journal.UpdateSessionState(id, string(registry.StateTerminated), "", sess.ContainerID); err != nil {
		m.logger.Error("journal terminate", "session_id", id, "error", err)
	}

	m.logger.Info("session terminated", "session_id", id, "delete_volume", deleteVolume)
	return nil
}

// Remove drops the registry entry, the journal row, and the per-session
// lock after termination.
func (m *Manager) Remove(id string) {
	m.registry.Remove(id)
	if err := m.journal.DeleteSession(id); err != nil {
		m.logger.Warn("journal delete", "session_id", id, "error", err)
	}
	m.CleanupSessionLock(id)
}

// readySession returns the session iff its probe has succeeded; every file
// and channel operation gates on this instead of hitting the engine for a
// half-started container.
func (m *Manager) readySession(id string) (registry.Session, error) {
	sess, err := m.registry.Get(id)
	if err != nil {
		return registry.Session{}, err
	}
	if sess.State != registry.StateReady {
		return registry.Session{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, sess.State)
	}
	return sess, nil
}

// ContainerFor exposes the container handle of a ready session for the
// terminal and execution channels.
func (m *Manager) ContainerFor(id string) (string, error) {
	sess, err := m.readySession(id)
	if err != nil {
		return "", err
	}
	return sess.ContainerID, nil
}

// Touch records client activity against the session.
func (m *Manager) Touch(id string) {
	m.registry.Touch(id)
	if err := m.journal.TouchSession(id); err != nil {
		m.logger.Debug("journal touch", "session_id", id, "error", err)
	}
}
