// Package memory provides an in-memory implementation of the persistence
// stores used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"

	"applycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

// Snapshot captures a point-in-time clone of the store state, used by the
// durable backends to hydrate and persist.
type Snapshot struct {
	Resources map[string]map[string]domain.StoredResource `json:"resources"`
	Users     map[string]*domain.User                     `json:"users"`
}

// Store keeps resources bucketed by type and users keyed by id.
type Store struct {
	mu        sync.RWMutex
	resources map[string]map[string]domain.StoredResource
	users     map[string]*domain.User
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		resources: make(map[string]map[string]domain.StoredResource),
		users:     make(map[string]*domain.User),
	}
}

// PutResource stores or replaces the resource version for its permalink.
func (s *Store) PutResource(_ context.Context, res domain.StoredResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.resources[res.Envelope.Type]
	if bucket == nil {
		bucket = make(map[string]domain.StoredResource)
		s.resources[res.Envelope.Type] = bucket
	}
	bucket[res.Envelope.Permalink] = cloneStored(res)
	return nil
}

// GetResource loads a resource by type and permalink.
func (s *Store) GetResource(_ context.Context, typ, permalink string) (domain.StoredResource, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[typ][permalink]
	if !ok {
		return domain.StoredResource{}, false, nil
	}
	return cloneStored(res), true, nil
}

// DeleteResource removes a resource; it reports whether one was present.
func (s *Store) DeleteResource(_ context.Context, typ, permalink string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.resources[typ]
	if _, ok := bucket[permalink]; !ok {
		return false, nil
	}
	delete(bucket, permalink)
	return true, nil
}

// ListResources returns all resources of one type sorted by permalink.
func (s *Store) ListResources(_ context.Context, typ string) ([]domain.StoredResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.resources[typ]
	out := make([]domain.StoredResource, 0, len(bucket))
	for _, res := range bucket {
		out = append(out, cloneStored(res))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Envelope.Permalink < out[j].Envelope.Permalink
	})
	return out, nil
}

// GetUser loads a deep copy of the user state.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false, nil
	}
	return domain.CloneUser(u), true, nil
}

// PutUser stores a deep copy of the user state.
func (s *Store) PutUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = domain.CloneUser(u)
	return nil
}

// ExportState returns a deep-copied snapshot of the full store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Resources: make(map[string]map[string]domain.StoredResource, len(s.resources)),
		Users:     make(map[string]*domain.User, len(s.users)),
	}
	for typ, bucket := range s.resources {
		cp := make(map[string]domain.StoredResource, len(bucket))
		for permalink, res := range bucket {
			cp[permalink] = cloneStored(res)
		}
		snap.Resources[typ] = cp
	}
	for id, u := range s.users {
		snap.Users[id] = domain.CloneUser(u)
	}
	return snap
}

// ImportState replaces the store state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = make(map[string]map[string]domain.StoredResource, len(snap.Resources))
	for typ, bucket := range snap.Resources {
		cp := make(map[string]domain.StoredResource, len(bucket))
		for permalink, res := range bucket {
			cp[permalink] = cloneStored(res)
		}
		s.resources[typ] = cp
	}
	s.users = make(map[string]*domain.User, len(snap.Users))
	for id, u := range snap.Users {
		s.users[id] = domain.CloneUser(u)
	}
}

func cloneStored(res domain.StoredResource) domain.StoredResource {
	cp := res
	cp.Body = append([]byte(nil), res.Body...)
	return cp
}
