package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]struct{}

// Registry owns the connection and group maps behind a single lock.
// No map ever leaves the registry, callers only get copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Sink // map username -> Sink
	groups   map[string]Set           // map group to usernames
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.Sink),
		groups:   make(map[string]Set),
	}
}

// Register inserts the session only if the username is free.
// Two concurrent registrations of the same name resolve with exactly one winner.
// A non-empty greeting is queued on the sink before it becomes visible, so it
// is always the first line the new session receives.
func (r *Registry) Register(username string, sink contract.Sink, greeting string) error {
	if username == "" {
		return errors.ErrBlankUsername
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[username]; taken {
		return errors.ErrUsernameTaken
	}
	if greeting != "" {
		if err := sink.Deliver(greeting); err != nil {
			return err
		}
	}
	r.sessions[username] = sink
	return nil
}

// Unregister removes the session and prunes the user from every group.
// Calling it twice is harmless.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, username)
	r.removeMemberLocked(username)
}

func (r *Registry) Lookup(username string) (contract.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[username]
	return sink, ok
}

// BroadcastAll delivers line to a snapshot of every live session.
// Delivery happens outside the lock, a failing recipient never stops the others.
func (r *Registry) BroadcastAll(line string) domain.DeliveryReport {
	var report domain.DeliveryReport
	for username, sink := range r.snapshot() {
		if err := sink.Deliver(line); err != nil {
			report.AddFailed(username, err)
			continue
		}
		report.AddDelivered(username)
	}
	return report
}

// Online returns the sorted usernames of live sessions.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := lo.Keys(r.sessions)
	sort.Strings(online)
	return online
}

func (r *Registry) snapshot() map[string]contract.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Assign(r.sessions)
}

// CreateGroup is a no-op if the group already exists.
func (r *Registry) CreateGroup(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[name]; !ok {
		r.groups[name] = make(Set)
	}
}

// JoinGroup creates the group on the fly and reports whether the user was newly added.
func (r *Registry) JoinGroup(name, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[name]
	if !ok {
		members = make(Set)
		r.groups[name] = members
	}
	if _, already := members[username]; already {
		return false
	}
	members[username] = struct{}{}
	return true
}

// MembersOf returns the sorted members of a group, empty if the group is unknown.
func (r *Registry) MembersOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := lo.Keys(r.groups[name])
	sort.Strings(members)
	return members
}

func (r *Registry) RemoveMember(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMemberLocked(username)
}

// Groups stay alive when they become empty, they live as long as the process.
func (r *Registry) removeMemberLocked(username string) {
	for _, members := range r.groups {
		delete(members, username)
	}
}

// SinksForGroup resolves the members of a group into live sinks in one
// critical section. Members without a live session are returned as absent.
func (r *Registry) SinksForGroup(name string) (map[string]contract.Sink, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[name]
	if !ok {
		return nil, nil
	}
	active := make(map[string]contract.Sink, len(members))
	var absent []string
	for username := range members {
		if sink, exists := r.sessions[username]; exists {
			active[username] = sink
			continue
		}
		absent = append(absent, username)
	}
	sort.Strings(absent)
	return active, absent
}
