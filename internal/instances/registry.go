// Package instances holds the explicit registry of per-server coordinators.
// The registry is owned by the composition root and passed by reference to
// anything that needs multi-instance lookup; there is deliberately no
// package-level global.
package instances

import (
	"fmt"
	"sort"
	"sync"

	"adguardmon/internal/coordinator"
)

// Registry maps instance ids to their coordinators. Registration happens at
// startup; lookups are concurrent-safe.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]*coordinator.Coordinator
	order        []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		coordinators: make(map[string]*coordinator.Coordinator),
	}
}

// Add registers a coordinator under its instance id. Duplicate ids are
// rejected; uniqueness is validated at config-load time so a collision here
// is a programming error worth surfacing.
func (r *Registry) Add(coord *coordinator.Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := coord.InstanceID()
	if id == "" {
		return fmt.Errorf("instance id cannot be empty")
	}
	if _, exists := r.coordinators[id]; exists {
		return fmt.Errorf("instance %q already registered", id)
	}
	r.coordinators[id] = coord
	r.order = append(r.order, id)
	return nil
}

// Get returns the coordinator for an instance id, or nil if unknown.
func (r *Registry) Get(id string) *coordinator.Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinators[id]
}

// IDs returns every registered instance id in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	sort.Strings(ids)
	return ids
}

// All returns every registered coordinator in registration order.
func (r *Registry) All() []*coordinator.Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*coordinator.Coordinator, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.coordinators[id])
	}
	return result
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coordinators)
}
