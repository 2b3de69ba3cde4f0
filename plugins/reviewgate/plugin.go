// Package reviewgate replaces automatic approval with a manual review gate:
// once all required forms are collected, the applicant is told the
// application is under review instead of receiving the certificate. A human
// operator approves or denies through the request surface later.
package reviewgate

import (
	"context"
	"sync"

	"applycore/pkg/domain"
	"applycore/pkg/hook"
	"applycore/pkg/pluginapi"
)

// Plugin implements the manual review gate.
type Plugin struct {
	mu      sync.Mutex
	pending []Pending
}

// Pending records one application awaiting manual review.
type Pending struct {
	UserID    string
	Product   string
	ContextID string
}

// New constructs a review gate plugin instance.
func New() *Plugin {
	return &Plugin{}
}

// Name returns the plugin identifier.
func (*Plugin) Name() string { return "reviewgate" }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return "0.1.0" }

// Hooks contributes the onFormsCollected override. Returning hook.Stop halts
// the chain before the default auto-approval handler runs.
func (p *Plugin) Hooks() hook.Set {
	return hook.Set{
		"onFormsCollected": p.onFormsCollected,
	}
}

func (p *Plugin) onFormsCollected(_ context.Context, payload any) (any, error) {
	req, ok := payload.(pluginapi.Request)
	if !ok {
		return nil, nil
	}
	app := req.Application()
	if app == nil {
		return nil, nil
	}
	req.Queue(domain.Resource{
		Envelope: domain.Envelope{Type: domain.TypeSimpleMessage},
		Properties: map[string]any{
			"message": "Thanks! Your application is under review.",
		},
	})
	p.mu.Lock()
	p.pending = append(p.pending, Pending{
		UserID:    req.User().ID,
		Product:   app.RequestFor,
		ContextID: domain.ApplicationContext(app),
	})
	p.mu.Unlock()
	return hook.Stop, nil
}

// PendingReviews returns a copy of applications awaiting review.
func (p *Plugin) PendingReviews() []Pending {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Pending, len(p.pending))
	copy(out, p.pending)
	return out
}

// Resolve removes a pending entry by context id. Returns false if absent.
func (p *Plugin) Resolve(contextID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.pending {
		if entry.ContextID == contextID {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return true
		}
	}
	return false
}
