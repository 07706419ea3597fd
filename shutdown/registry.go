package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tryon_backend/core"
)

// Cleanup priorities. Lower values run first.
const (
	PriorityHTTPServer = 10 // stop accepting requests
	PriorityWorkers    = 20 // background loops such as the cache sweeper
	PriorityStorage    = 30 // database handles
	PriorityLogger     = 90 // flush logs last
)

type cleanupEntry struct {
	name     string
	priority int
	fn       core.ShutdownFunc
}

// Registry runs named cleanup functions once, in priority order.
// Entries with equal priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []cleanupEntry
	ran     bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fn. Registrations after Run are ignored.
func (r *Registry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ran {
		return
	}
	r.entries = append(r.entries, cleanupEntry{name: name, priority: priority, fn: fn})
}

// Names returns the registered names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	entries := r.sorted()
	r.mu.Unlock()

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run calls every function, even after failures, and returns their errors
// prefixed with the entry name. Only the first call does anything.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return nil
	}
	r.ran = true
	entries := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// sorted returns a priority-ordered copy; callers hold r.mu.
func (r *Registry) sorted() []cleanupEntry {
	out := make([]cleanupEntry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority < out[j].priority
	})
	return out
}
