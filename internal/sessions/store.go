// Package sessions implements the Session Store (C3): single-writer-per-
// session concurrency discipline over a keyed collection of sessions,
// concurrent-safe across distinct session ids.
//
// Grounded on the teacher's internal/sessions/store.go (Store interface
// shape) and internal/sessions/write_lock.go (per-session SessionLocker,
// LockingStore wrapper), generalized from the teacher's channel-routed
// session key to this spec's plain session_id.
package sessions

import (
	"context"
	"errors"

	"github.com/meridianbank/agentcore/internal/model"
)

// ErrAlreadyExists is returned by Create when session_init targets an id
// that is already live (resolved Open Question: duplicate session_init
// hard-fails rather than silently reusing the existing session).
var ErrAlreadyExists = errors.New("sessions: session already exists")

// ErrNotFound is returned by Get/Update for an unknown session id; Delete
// of an unknown id returns nil.
var ErrNotFound = errors.New("sessions: session not found")

// Store is the session persistence interface. Every implementation must
// guarantee single-writer-per-session semantics: concurrent Update calls
// for the same id serialize, while calls against distinct ids never block
// one another.
type Store interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update applies fn to the canonical session under the per-session
	// write lock and persists the result. fn receives a mutable pointer
	// to the live session, not a clone.
	Update(ctx context.Context, id string, fn func(*model.Session) error) error
	Delete(ctx context.Context, id string) error
}
