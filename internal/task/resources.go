package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MainFrame is the resource holding the frame captured for this tick.
const MainFrame = "Main Frame"

var (
	// ErrResourceMissing is returned when a resource is not set.
	ErrResourceMissing = errors.New("resource not available")
	// ErrResourceType is returned when a resource holds a different type.
	ErrResourceType = errors.New("resource has unexpected type")
)

// Resources is a named blackboard shared between tasks.
type Resources struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewResources creates an empty blackboard.
func NewResources() *Resources {
	return &Resources{items: make(map[string]any)}
}

// Set stores v under name, replacing any previous value.
func (r *Resources) Set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = v
}

// Remove deletes name. Removing a missing resource does nothing.
func (r *Resources) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, name)
}

// Has reports whether name is set.
func (r *Resources) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[name]
	return ok
}

// Names returns the set resource names in sorted order.
func (r *Resources) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the resource name as a T.
func Get[T any](r *Resources, name string) (T, error) {
	var zero T

	r.mu.RLock()
	v, ok := r.items[name]
	r.mu.RUnlock()

	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrResourceMissing, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T", ErrResourceType, name, v)
	}
	return t, nil
}
