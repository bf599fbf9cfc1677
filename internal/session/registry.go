// Package session tracks which participants have finished loading their
// durable record and owns the in-memory pending exit actions for active
// quest segments. Exit actions are behavior, not data: they cannot be
// persisted, so they live and die with the participant's session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/suit-up-repos/questd/internal/catalog"
	apperrors "github.com/suit-up-repos/questd/internal/platform/errors"
	"github.com/suit-up-repos/questd/internal/platform/timeouts"
)

// DefaultReadyTimeout bounds how long quest operations wait for a
// participant's session to finish loading before proceeding best-effort.
const DefaultReadyTimeout = timeouts.SessionReady

// participantState is the per-participant in-memory session state.
type participantState struct {
	// readyCh closes exactly once when the participant registers.
	readyCh chan struct{}
	ready   bool
	// waiters counts AwaitReady calls currently blocked on readyCh. A state
	// created only to host waiters is removed once the last waiter leaves
	// without the participant having registered.
	waiters int
	// exits maps quest name to the pending exit action returned by the
	// last-run segment enter handler. Nil until the session registers.
	exits map[string]catalog.ExitHandler
}

// Registry tracks session readiness per participant and resolves readiness
// waits with a one-shot notification instead of polling.
type Registry struct {
	mu           sync.Mutex
	participants map[string]*participantState
	readyTimeout time.Duration
}

// NewRegistry creates a session registry. A non-positive timeout selects
// DefaultReadyTimeout.
func NewRegistry(readyTimeout time.Duration) *Registry {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &Registry{
		participants: make(map[string]*participantState),
		readyTimeout: readyTimeout,
	}
}

// stateLocked returns the tracked state for a participant, creating a waiter
// entry when none exists yet. Callers must hold r.mu.
func (r *Registry) stateLocked(participantID string) *participantState {
	state, ok := r.participants[participantID]
	if !ok {
		state = &participantState{readyCh: make(chan struct{})}
		r.participants[participantID] = state
	}
	return state
}

// Register marks a participant's session ready and wakes every pending
// readiness wait. Registering an already-ready participant is a no-op.
func (r *Registry) Register(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.stateLocked(participantID)
	if state.ready {
		return
	}
	state.ready = true
	if state.exits == nil {
		state.exits = make(map[string]catalog.ExitHandler)
	}
	close(state.readyCh)
}

// Unregister discards all in-memory session state for a participant without
// persisting anything: the durable store already holds the latest committed
// quest state, and pending exit actions die with the session.
func (r *Registry) Unregister(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, participantID)
}

// IsReady reports whether a participant's session has registered.
func (r *Registry) IsReady(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.participants[participantID]
	return ok && state.ready
}

// AwaitReady blocks until the participant registers, the context is
// cancelled, or the registry's bounded timeout elapses. Timeout is reported
// as a SESSION_NOT_READY error so callers can proceed best-effort.
func (r *Registry) AwaitReady(ctx context.Context, participantID string) error {
	r.mu.Lock()
	state := r.stateLocked(participantID)
	readyCh := state.readyCh
	state.waiters++
	r.mu.Unlock()
	defer r.releaseWaiter(participantID, state)

	select {
	case <-readyCh:
		return nil
	default:
	}

	timer := time.NewTimer(r.readyTimeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return apperrors.WithMetadata(apperrors.CodeSessionNotReady,
			"session did not become ready in time",
			map[string]string{"participant_id": participantID})
	}
}

// releaseWaiter drops one AwaitReady reference. A never-registered entry is
// deleted once its last waiter leaves so waiting on unknown participants does
// not grow the registry.
func (r *Registry) releaseWaiter(participantID string, state *participantState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state.waiters--
	if !state.ready && state.waiters == 0 && r.participants[participantID] == state {
		delete(r.participants, participantID)
	}
}

// SetPendingExit stores the exit action for a quest's current segment.
// It reports false when the participant has no registered session, in which
// case the action is dropped: an unregistered session has nowhere durable to
// keep behavior, and the handler re-arms on the next register.
func (r *Registry) SetPendingExit(participantID, questName string, exit catalog.ExitHandler) bool {
	if exit == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.participants[participantID]
	if !ok || state.exits == nil {
		return false
	}
	state.exits[questName] = exit
	return true
}

// TakePendingExit removes and returns the pending exit action for a quest.
// The take-and-clear contract is what makes exit actions run at most once.
func (r *Registry) TakePendingExit(participantID, questName string) (catalog.ExitHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.participants[participantID]
	if !ok || state.exits == nil {
		return nil, false
	}
	exit, ok := state.exits[questName]
	if !ok {
		return nil, false
	}
	delete(state.exits, questName)
	return exit, true
}
