// Package pluginapi defines the stable surface plugin packages build
// against. Plugins contribute hook handlers and observe requests through the
// Request view; they never import the engine internals.
package pluginapi

import (
	"context"

	"applycore/pkg/domain"
	"applycore/pkg/hook"
)

// Plugin describes an extension module that contributes hook handlers.
type Plugin interface {
	Name() string
	Version() string
	Hooks() hook.Set
}

// Request is the per-message view handed to hook handlers. The concrete
// implementation lives in the engine; mutations through this view are
// observed by all later handlers for the same message.
type Request interface {
	// User returns the mutable user state for this message.
	User() *domain.User
	// Object returns the inbound payload.
	Object() domain.Resource
	// Application returns the resolved application, or nil.
	Application() *domain.Application
	// ContextID returns the correlation id for this message.
	ContextID() string
	// Queue schedules an outbound message, flushed once inbound processing
	// completes.
	Queue(obj domain.Resource)
	// CancelQueued removes queued messages matching the predicate and
	// returns how many were removed.
	CancelQueued(match func(domain.Resource) bool) int
	// Approve issues the certificate for the resolved application.
	Approve(ctx context.Context) error
	// Deny denies the resolved application and archives it.
	Deny(ctx context.Context) error
}

// Version is the plugin API contract version.
const Version = "v1"
