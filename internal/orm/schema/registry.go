package schema

import (
	"fmt"
	"sync"
)

// Registry is the entity store: the list of entities known to the application,
// kept in registration order. It is built once at startup and passed to the
// persistence layer, the differ and the migration runner.
type Registry struct {
	entries []*TableMetadata
	byName  map[string]*Entity
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Entity),
	}
}

// Register adds an entity to the registry.
// The entity must have a table declaration and must not already be registered.
func (r *Registry) Register(entity *Entity) error {
	table, err := entity.TableMetadata()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.Entity == entity {
			return fmt.Errorf("entity %s is already registered", entity.Name)
		}
	}
	if other, exists := r.byName[entity.Name]; exists && other != entity {
		return fmt.Errorf("another entity named %s is already registered", entity.Name)
	}

	r.entries = append(r.entries, table)
	r.byName[entity.Name] = entity
	return nil
}

// MustRegister registers entities and panics on the first error.
// Intended for startup wiring where a declaration mistake is a programming error.
func (r *Registry) MustRegister(entities ...*Entity) *Registry {
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// All returns the table metadata of every registered entity in registration order
func (r *Registry) All() []*TableMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*TableMetadata, len(r.entries))
	copy(result, r.entries)
	return result
}

// Entities returns the registered entities in registration order
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Entity, 0, len(r.entries))
	for _, t := range r.entries {
		result = append(result, t.Entity)
	}
	return result
}

// Get returns the table metadata of a registered entity
func (r *Registry) Get(entity *Entity) (*TableMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.entries {
		if t.Entity == entity {
			return t, true
		}
	}
	return nil, false
}

// Lookup finds a registered entity by name
func (r *Registry) Lookup(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	return e, ok
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
