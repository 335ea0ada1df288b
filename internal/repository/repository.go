// Package repository stores the last-known name and type of every device
// that has ever connected, independent of whether it is online right
// now. It is a port: the in-memory adapter below is the only one wired
// today (see DESIGN.md for why no database driver is bound to it).
package repository

import "sync"

// Record is the persisted projection of one device, keyed by its stable
// link identity.
type Record struct {
	ID   string
	Name string
	Type string
}

// DeviceRepository is the persistence port. cmd/firmgated upserts into it
// from its subscriber to the roster's joined events.
type DeviceRepository interface {
	FindAll() []Record
	Upsert(id, name, typ string) error
	Delete(id string) error
}

// InMemory is a DeviceRepository backed by a mutex-guarded map. Its
// contents do not survive a process restart.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemory returns an empty in-memory repository.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]Record)}
}

func (r *InMemory) FindAll() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

func (r *InMemory) Upsert(id, name, typ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = Record{ID: id, Name: name, Type: typ}
	return nil
}

func (r *InMemory) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}
