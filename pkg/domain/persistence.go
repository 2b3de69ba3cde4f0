package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// StoredResource is one persisted resource version: the addressing envelope
// plus the marshalled body.
type StoredResource struct {
	Envelope Envelope        `json:"envelope"`
	Body     json.RawMessage `json:"body"`
}

// ResourceStore is a minimal abstraction over durable resource backends. It
// mirrors the subset of gateway capabilities used by higher layers: resources
// are addressed by type and permalink, and each put replaces the stored
// version for that permalink.
type ResourceStore interface {
	PutResource(ctx context.Context, res StoredResource) error
	GetResource(ctx context.Context, typ, permalink string) (StoredResource, bool, error)
	DeleteResource(ctx context.Context, typ, permalink string) (bool, error)
	ListResources(ctx context.Context, typ string) ([]StoredResource, error)
}

// UserStore persists engine-owned user state keyed by stable id.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, bool, error)
	PutUser(ctx context.Context, u *User) error
}

// PersistentStore combines the resource and user stores backed by one
// durable backend.
type PersistentStore interface {
	ResourceStore
	UserStore
}

// ErrNotFound is returned when a resource lookup fails.
type ErrNotFound struct {
	Type      string
	Permalink string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Type, e.Permalink)
}
