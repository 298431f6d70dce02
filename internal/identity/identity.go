// Package identity resolves the active session to a stable user identifier.
// All storage keys in the core are namespaced by the resolved user ID.
package identity

import "sync"

// Resolver maps the active session to a stable user ID. An empty string
// means no user is logged in; callers treat that as an expected transient
// state (reads return empty results, writes are no-ops).
type Resolver interface {
	CurrentUserID() string
}

// StaticResolver is a Resolver backed by an explicitly set user ID. The host
// updates it on login and logout.
type StaticResolver struct {
	mu     sync.RWMutex
	userID string
}

// NewStaticResolver creates a StaticResolver with the given initial user.
func NewStaticResolver(userID string) *StaticResolver {
	return &StaticResolver{userID: userID}
}

// CurrentUserID returns the active user ID, or "" when logged out.
func (r *StaticResolver) CurrentUserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID
}

// SetUserID updates the active user. Pass "" on logout.
func (r *StaticResolver) SetUserID(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
}
