// Package registry is the process-wide session state table: the single
// source of truth clients poll for readiness. It never talks to the
// container engine. Entries are guarded per-session so unrelated sessions
// never serialize on each other.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a session's lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateCreating   State = "creating"
	StateStarting   State = "starting"
	StateProbing    State = "probing"
	StateReady      State = "ready"
	StateError      State = "error"
	StateTerminated State = "terminated"
)

// Terminal reports whether no further transitions are expected (other than
// explicit termination of an errored session).
func (s State) Terminal() bool {
	return s == StateReady || s == StateError || s == StateTerminated
}

// Error reason codes attached to StateError.
const (
	ReasonImageUnavailable = "IMAGE_UNAVAILABLE"
	ReasonReadyTimeout     = "READY_TIMEOUT"
	ReasonCreateFailed     = "CREATE_FAILED"
)

var ErrNotFound = errors.New("session not found")

// Session is the registry's view of one sandbox session. Values returned
// from the registry are copies; mutation happens only through the
// state-transition API.
type Session struct {
	ID          string
	UserID      string
	Image       string
	VolumeName  string
	ContainerID string

	State     State
	ErrorCode string // set when State == StateError

	CreatedAt        time.Time
	LastReadyCheckAt time.Time
	LastActivity     time.Time
}

type entry struct {
	mu   sync.Mutex
	sess Session
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Register inserts a new session in StatePending. If the id is already
// registered the existing session is returned unchanged, making session
// creation idempotent at the table level.
func (r *Registry) Register(sess Session) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sess.ID]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.sess, false
	}
	now := time.Now().UTC()
	sess.State = StatePending
	sess.CreatedAt = now
	sess.LastActivity = now
	r.sessions[sess.ID] = &entry{sess: sess}
	return sess, true
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get returns a copy of the session. Unknown ids return ErrNotFound,
// never a generic error.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, nil
}

func (r *Registry) update(id string, fn func(*Session) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.sess)
}

// SetState transitions the session. Entering StateReady requires a
// container id: ready always implies a live container handle.
func (r *Registry) SetState(id string, state State, errorCode string) error {
	return r.update(id, func(s *Session) error {
		if state == StateReady {
			if s.ContainerID == "" {
				return fmt.Errorf("session %s: ready without container", id)
			}
			s.LastReadyCheckAt = time.Now().UTC()
		}
		s.State = state
		s.ErrorCode = errorCode
		return nil
	})
}

func (r *Registry) SetContainer(id, containerID string) error {
	return r.update(id, func(s *Session) error {
		s.ContainerID = containerID
		return nil
	})
}

func (r *Registry) SetVolume(id, volumeName string) error {
	return r.update(id, func(s *Session) error {
		s.VolumeName = volumeName
		return nil
	})
}

// Touch records client activity, deferring the idle reaper.
func (r *Registry) Touch(id string) error {
	return r.update(id, func(s *Session) error {
		s.LastActivity = time.Now().UTC()
		return nil
	})
}

// TouchReadyCheck records a successful readiness probe.
func (r *Registry) TouchReadyCheck(id string) error {
	return r.update(id, func(s *Session) error {
		s.LastReadyCheckAt = time.Now().UTC()
		return nil
	})
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) List() []Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.sess)
		e.mu.Unlock()
	}
	return out
}

// IdleBefore returns sessions whose last activity predates cutoff and
// which still hold resources worth reaping.
func (r *Registry) IdleBefore(cutoff time.Time) []Session {
	var idle []Session
	for _, sess := range r.List() {
		if sess.State == StateTerminated {
			continue
		}
		if sess.LastActivity.Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	return idle
}
