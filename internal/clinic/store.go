package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrTenantNotFound is returned by stores when no active tenant has the id.
var ErrTenantNotFound = errors.New("clinic: tenant not found")

// Store loads tenants by normalized id.
type Store interface {
	Get(ctx context.Context, id string) (*Tenant, error)
}

// StaticStore is an in-memory tenant registry.
type StaticStore struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

// NewStaticStore builds a registry from the given tenants.
func NewStaticStore(tenants ...Tenant) *StaticStore {
	s := &StaticStore{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		s.tenants[t.ID] = t
	}
	return s
}

// ParseStaticTenants decodes a JSON array of tenants into a StaticStore.
func ParseStaticTenants(raw string) (*StaticStore, error) {
	var tenants []Tenant
	if err := json.Unmarshal([]byte(raw), &tenants); err != nil {
		return nil, fmt.Errorf("clinic: parse tenants json: %w", err)
	}
	for i := range tenants {
		if err := tenants[i].Validate(); err != nil {
			return nil, err
		}
	}
	return NewStaticStore(tenants...), nil
}

// Get implements Store.
func (s *StaticStore) Get(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok || !t.Active {
		return nil, ErrTenantNotFound
	}
	return &t, nil
}

// Put adds or replaces a tenant.
func (s *StaticStore) Put(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// All returns every tenant, active or not, ordered by id.
func (s *StaticStore) All() []Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
