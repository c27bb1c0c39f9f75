package presence

import "sync"

// Registry tracks which users hold live connections right now. A user may
// hold any number of simultaneous connections (multi-device, multi-tab) and
// is online iff at least one exists. State is process-local and lost on
// restart; the durable is_online projection is reconciled separately.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[string]struct{} // userID -> set of connectionID
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection and reports whether the user was already
// online before this connection. false marks the 0->1 transition, the only
// point where callers emit a durable presence flip.
func (r *Registry) Add(userID, connectionID string) (wasOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[userID]
	if !ok {
		set = make(map[string]struct{})
		r.connections[userID] = set
	}
	wasOnline = len(set) > 0
	set[connectionID] = struct{}{}
	return wasOnline
}

// Remove deregisters a connection and reports whether the user is still
// online afterwards. Users with no remaining connections are dropped from
// the map entirely.
func (r *Registry) Remove(userID, connectionID string) (isNowOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.connections[userID]
	if !ok {
		return false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.connections, userID)
		return false
	}
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID]) > 0
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.connections))
	for userID := range r.connections {
		ids = append(ids, userID)
	}
	return ids
}

func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[userID])
}
