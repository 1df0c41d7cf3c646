package realtime

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps each user to the set of that user's open channels.
//
// Concurrency guarantees:
//   - Register/Unregister/Snapshot are safe under concurrent use.
//   - The lock is held only for map mutation or copy, never across I/O.
//   - A user with no channels has no entry.
type Registry struct {
	log     *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	byUser map[string]map[*Channel]struct{}
	total  int
}

// NewRegistry constructs an empty Registry. metrics may be nil.
func NewRegistry(log *slog.Logger, metrics *Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		metrics: metrics,
		byUser:  make(map[string]map[*Channel]struct{}),
	}
}

// Register adds ch to userID's set, creating the entry if absent.
// Registering the same channel twice is a no-op. A channel that is already
// closing is refused so teardown can never race a late registration.
// It reports whether the set changed.
func (r *Registry) Register(userID string, ch *Channel) bool {
	if r == nil || ch == nil || userID == "" {
		return false
	}

	r.mu.Lock()
	if ch.State() >= StateClosing {
		r.mu.Unlock()
		return false
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[*Channel]struct{}, 1)
		r.byUser[userID] = set
	}
	if _, dup := set[ch]; dup {
		r.mu.Unlock()
		return false
	}
	set[ch] = struct{}{}
	r.total++
	// Gauges are written under the lock so they always match the last mutation.
	r.metrics.setOccupancy(len(r.byUser), r.total)
	r.mu.Unlock()

	r.log.Debug("registry.register", "user_id", userID, "channel_id", ch.ID)
	return true
}

// Unregister removes ch from userID's set and drops the entry when it
// becomes empty. Removing an absent channel is a no-op.
// It reports whether the set changed.
func (r *Registry) Unregister(userID string, ch *Channel) bool {
	if r == nil || ch == nil {
		return false
	}

	r.mu.Lock()
	set, ok := r.byUser[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, present := set[ch]; !present {
		r.mu.Unlock()
		return false
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
	r.total--
	r.metrics.setOccupancy(len(r.byUser), r.total)
	r.mu.Unlock()

	r.log.Debug("registry.unregister", "user_id", userID, "channel_id", ch.ID)
	return true
}

// Snapshot returns a point-in-time copy of userID's channels (unordered).
// The result is never a live view.
func (r *Registry) Snapshot(userID string) []*Channel {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}

// Len returns the number of channels registered for userID.
func (r *Registry) Len(userID string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Identities returns the users that currently have at least one channel, sorted.
func (r *Registry) Identities() []string {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Total returns the number of registered channels across all users.
func (r *Registry) Total() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
