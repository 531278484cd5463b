package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Validate that MemoryStore implements the Store interface
var _ Store = &MemoryStore{}

// MemoryStore is an in-memory Store for tests and --no-history runs.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]map[string]map[string]json.RawMessage
	sequences map[string]uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string]map[string]map[string]json.RawMessage),
		sequences: make(map[string]uint64),
	}
}

// Open initializes the memory store.
func (m *MemoryStore) Open(path string) error {
	return nil
}

// Close closes the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Create creates a resource in the memory store.
func (m *MemoryStore) Create(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pipelines, ok := m.data[resourceType]
	if !ok {
		pipelines = make(map[string]map[string]json.RawMessage)
		m.data[resourceType] = pipelines
	}
	names, ok := pipelines[pipeline]
	if !ok {
		names = make(map[string]json.RawMessage)
		pipelines[pipeline] = names
	}

	if _, exists := names[name]; exists {
		return fmt.Errorf("resource %s/%s/%s already exists", resourceType, pipeline, name)
	}
	names[name] = data
	return nil
}

// Get retrieves a resource from the memory store.
func (m *MemoryStore) Get(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	m.mu.RLock()
	data, ok := m.lookup(resourceType, pipeline, name)
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	}
	return json.Unmarshal(data, resource)
}

// Update replaces an existing resource.
func (m *MemoryStore) Update(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(resourceType, pipeline, name); !ok {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	}
	m.data[resourceType][pipeline][name] = data
	return nil
}

// Delete deletes a resource.
func (m *MemoryStore) Delete(ctx context.Context, resourceType, pipeline, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(resourceType, pipeline, name); !ok {
		return fmt.Errorf("resource %s/%s/%s not found", resourceType, pipeline, name)
	}
	delete(m.data[resourceType][pipeline], name)
	return nil
}

// List retrieves all resources of a type for a pipeline, in key order
// to match the badger store.
func (m *MemoryStore) List(ctx context.Context, resourceType, pipeline string, out interface{}) error {
	m.mu.RLock()

	var names []string
	pipelines := m.data[resourceType]
	if byName, ok := pipelines[pipeline]; ok {
		for name := range byName {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	resources := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		resources = append(resources, pipelines[pipeline][name])
	}
	m.mu.RUnlock()

	return UnmarshalResource(resources, out)
}

// NextSequence returns the next run number for a pipeline, starting
// at 1.
func (m *MemoryStore) NextSequence(pipeline string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[pipeline]++
	return m.sequences[pipeline], nil
}

// lookup requires the caller to hold at least a read lock.
func (m *MemoryStore) lookup(resourceType, pipeline, name string) (json.RawMessage, bool) {
	pipelines, ok := m.data[resourceType]
	if !ok {
		return nil, false
	}
	names, ok := pipelines[pipeline]
	if !ok {
		return nil, false
	}
	data, ok := names[name]
	return data, ok
}
