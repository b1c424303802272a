// Package runtime hosts the relay engine: the connection registry,
// the presence state machine, event routing and read-receipt handling.
// It owns no transport or storage details, only their contracts.
package runtime

import (
	"sync"

	"dm-relay/domain"
)

type Set map[domain.ConnID]struct{}

// Registry maps each reachable user to its set of live connections.
// A reverse index (connection -> user) makes Deregister O(1) instead of
// scanning every entry on each disconnect.
//
// Entries only exist for users with at least one connection: the last
// removal deletes the entry atomically, and the first/last transition
// signals are computed inside the same critical section as the mutation.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]Set
	owner map[domain.ConnID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]Set),
		owner: make(map[domain.ConnID]domain.UserID),
	}
}

// Register adds conn to user's connection set, creating the entry if absent.
// Idempotent when the pair is already registered. If the connection was
// previously held by another user it is moved; displaced names that user and
// displacedLast reports whether the move emptied their set, so the caller can
// run the offline transition it implies. first is true iff this was the
// user's first connection.
func (r *Registry) Register(user domain.UserID, conn domain.ConnID) (first bool, displaced domain.UserID, displacedLast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[conn]; ok {
		if prev == user {
			return false, "", false
		}
		displaced = prev
		displacedLast = r.removeLocked(prev, conn)
	}

	set, existed := r.conns[user]
	if !existed {
		set = make(Set)
		r.conns[user] = set
	}
	set[conn] = struct{}{}
	r.owner[conn] = user
	return !existed, displaced, displacedLast
}

// Deregister removes conn from whichever user currently holds it.
// Returns the owning user, whether this removal emptied the owner's set,
// and whether the connection was registered at all.
func (r *Registry) Deregister(conn domain.ConnID) (domain.UserID, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.owner[conn]
	if !ok {
		return "", false, false
	}
	last := r.removeLocked(user, conn)
	return user, last, true
}

// removeLocked deletes the pair and reports whether the user's set emptied.
// Caller holds the write lock.
func (r *Registry) removeLocked(user domain.UserID, conn domain.ConnID) bool {
	delete(r.owner, conn)
	set, ok := r.conns[user]
	if !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, user)
		return true
	}
	return false
}

// ConnectionsOf returns a point-in-time snapshot of the user's connections,
// or nil if the user is not reachable.
func (r *Registry) ConnectionsOf(user domain.UserID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[user]
	if len(set) == 0 {
		return nil
	}
	snapshot := make([]domain.ConnID, 0, len(set))
	for conn := range set {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

func (r *Registry) IsOnline(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[user]) > 0
}

// OnlineUsers returns every user currently holding at least one connection.
func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserID, 0, len(r.conns))
	for user := range r.conns {
		users = append(users, user)
	}
	return users
}
