package memoryregistry

import (
	"sort"
	"sync"

	"github.com/xpanvictor/voxgate/pkg/io/device"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
)

type mmrRegistry struct {
	mu    sync.RWMutex
	epMap map[string]device.Endpoint
}

// Register implements registry.Registry.
func (m *mmrRegistry) Register(id string, ep device.Endpoint) (device.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.epMap[id]
	m.epMap[id] = ep
	if ok && prev.ID() == ep.ID() {
		return nil, false
	}
	return prev, ok
}

// Lookup implements registry.Registry.
func (m *mmrRegistry) Lookup(id string) (device.Endpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.epMap[id]
	return ep, ok
}

// Remove implements registry.Registry.
func (m *mmrRegistry) Remove(id string, ep device.Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.epMap[id]
	if !ok || cur.ID() != ep.ID() {
		return false
	}
	delete(m.epMap, id)
	return true
}

// IDs implements registry.Registry.
func (m *mmrRegistry) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.epMap))
	for id := range m.epMap {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len implements registry.Registry.
func (m *mmrRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.epMap)
}

func New() registry.Registry {
	return &mmrRegistry{
		epMap: make(map[string]device.Endpoint),
	}
}
