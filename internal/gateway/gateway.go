// Package gateway defines the messaging seam between the progression engine
// and the platform: sending, signing, sealing, and resource persistence.
// Cryptographic signing and transport are external; implementations here
// only stamp envelopes and delegate storage.
package gateway

import (
	"context"

	"applycore/pkg/domain"
)

// Outbound is one message queued for delivery to a user.
type Outbound struct {
	To      string
	Object  domain.Resource
	Context string
}

// Gateway is the narrow collaborator surface the engine consumes.
type Gateway interface {
	// Send signs, persists, and delivers one outbound message.
	Send(ctx context.Context, msg Outbound) (domain.Resource, error)
	// SendBatch delivers all messages accumulated for one inbound request.
	SendBatch(ctx context.Context, msgs []Outbound) ([]domain.Resource, error)
	// Sign stamps a signature and addressing links on the record in place.
	Sign(ctx context.Context, rec domain.Record) error
	// Seal requests a cryptographic seal for a message link.
	Seal(ctx context.Context, link string) error
	// Save persists the first version of a record, assigning links.
	Save(ctx context.Context, rec domain.Record) error
	// VersionAndSave persists a new immutable version, preserving the
	// previous-version link.
	VersionAndSave(ctx context.Context, rec domain.Record) error
	// Get loads a stored resource by type and permalink.
	Get(ctx context.Context, typ, permalink string) (domain.StoredResource, bool, error)
	// Delete removes a stored resource by type and permalink.
	Delete(ctx context.Context, typ, permalink string) error
	// Identity returns this side's identity stub.
	Identity(ctx context.Context) (domain.Stub, error)
	// LookupIdentity resolves a counterparty identity by permalink.
	LookupIdentity(ctx context.Context, permalink string) (domain.Resource, bool, error)
}

// MessageHandler consumes one inbound message for a user.
type MessageHandler func(ctx context.Context, userID string, object domain.Resource) error

// MessageSource is implemented by gateways that can push inbound messages.
// Subscribing returns an unsubscribe callback.
type MessageSource interface {
	OnMessage(h MessageHandler) func()
}
