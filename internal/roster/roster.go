// Package roster tracks every currently-connected device session and
// republishes a discrete snapshot feed whenever a session joins, updates,
// or leaves. This outward feed is kept entirely separate from the codec
// event channels a session uses internally (spec §9): the roster only
// ever emits Snapshot values, never raw Firmata frames.
package roster

import (
	"sync"

	"github.com/daftfox/rev/internal/device"
	"github.com/daftfox/rev/internal/eventbus"
)

// Roster is safe for concurrent use. It implements device.RosterHandle so
// sessions can register themselves without importing this package.
type Roster struct {
	bus *eventbus.Bus

	mu       sync.RWMutex
	sessions map[string]*device.Session
}

// New builds an empty roster backed by bus for outward notifications.
func New(bus *eventbus.Bus) *Roster {
	return &Roster{
		bus:      bus,
		sessions: make(map[string]*device.Session),
	}
}

// Register adds s to the roster, replacing any prior entry under the same
// identity. A prior entry can only still be present if its session never
// reached CLOSED before a reconnect raced ahead of deregistration; rather
// than assume that race away, Register disconnects the superseded session
// and waits for it to reach CLOSED before installing s, so its timers and
// goroutines are released instead of leaking (spec §3).
func (r *Roster) Register(s *device.Session) {
	r.mu.RLock()
	prior, hadPrior := r.sessions[s.Identity()]
	r.mu.RUnlock()

	if hadPrior && prior != s {
		prior.Disconnect()
		<-prior.Done()
	}

	r.mu.Lock()
	r.sessions[s.Identity()] = s
	r.mu.Unlock()
	r.bus.Publish(eventbus.Joined, s.Snapshot())
}

// Deregister removes s from the roster, but only if it is still the
// session registered under its identity — a session superseded by
// Register before its own Disconnect completes must not delete the
// entry its successor just installed. Idempotent.
func (r *Roster) Deregister(s *device.Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.Identity()]
	removed := ok && current == s
	if removed {
		delete(r.sessions, s.Identity())
	}
	r.mu.Unlock()
	if removed {
		r.bus.Publish(eventbus.Left, s.Identity())
	}
}

// NotifyUpdated republishes the current snapshot for identity. A no-op if
// the session is not (or no longer) registered.
func (r *Roster) NotifyUpdated(identity string) {
	r.mu.RLock()
	s, ok := r.sessions[identity]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.bus.Publish(eventbus.Updated, s.Snapshot())
}

// Get returns the live session for identity, if connected.
func (r *Roster) Get(identity string) (*device.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// Snapshots returns the discrete projection of every connected device.
func (r *Roster) Snapshots() []device.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]device.Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Len reports the number of currently connected sessions.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
