package module

import (
	"fmt"
	"sync"
)

// Registry is the static, ordered table of known modules. Registration order
// is the tie-breaker the pipeline uses when it orders modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{}}
}

// Register installs a module. Returns an error if the ID already exists.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return fmt.Errorf("module: module is required")
	}
	info := m.Info()
	if err := info.Validate(); err != nil {
		return err
	}
	if err := m.Options().Validate(); err != nil {
		return fmt.Errorf("module: %s: %w", info.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[info.ID]; exists {
		return fmt.Errorf("module: %s already registered", info.ID)
	}
	r.modules[info.ID] = m
	r.order = append(r.order, info.ID)
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(m Module) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Get returns a module by ID.
func (r *Registry) Get(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// Modules returns every module in registration order.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}

// Len reports how many modules are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
