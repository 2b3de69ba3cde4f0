package engine

import (
	"context"
	"fmt"

	"applycore/internal/gateway"
	"applycore/pkg/domain"
	"applycore/pkg/pluginapi"
)

// Request is the per-message context threaded through every hook. Mutations
// made by one handler are observed by all later handlers for the same
// message; the outbound queue is flushed only after the whole pipeline ran.
type Request struct {
	engine    *Engine
	userID    string
	user      *domain.User
	object    domain.Resource
	app       *domain.Application
	snapshot  *domain.Application
	contextID string
	queue     []gateway.Outbound
}

var _ pluginapi.Request = (*Request)(nil)

// User returns the mutable user state for this message.
func (r *Request) User() *domain.User { return r.user }

// Object returns the inbound payload.
func (r *Request) Object() domain.Resource { return r.object }

// Application returns the resolved application, or nil.
func (r *Request) Application() *domain.Application { return r.app }

// ContextID returns the correlation id for this message.
func (r *Request) ContextID() string { return r.contextID }

// Queue schedules an outbound message for the batch flush. The application
// context is stamped when the message belongs to a resolved application and
// carries no context of its own.
func (r *Request) Queue(obj domain.Resource) {
	ctx := obj.Context
	if ctx == "" {
		if r.app != nil {
			ctx = domain.ApplicationContext(r.app)
		} else {
			ctx = r.contextID
		}
	}
	r.queue = append(r.queue, gateway.Outbound{To: r.userID, Object: obj, Context: ctx})
}

// CancelQueued removes queued messages matching the predicate and returns how
// many were removed. This is the only way to unsend: once the queue is
// flushed the messages are gone.
func (r *Request) CancelQueued(match func(domain.Resource) bool) int {
	if match == nil {
		return 0
	}
	kept := r.queue[:0]
	removed := 0
	for _, msg := range r.queue {
		if match(msg.Object) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	r.queue = kept
	return removed
}

// attach binds a resolved or freshly created application to the request.
func (r *Request) attach(app *domain.Application) {
	r.app = app
}

// Approve issues the certificate for the resolved application: the stub moves
// from the in-flight list to certificates and the certificate message is
// queued for the batch flush.
func (r *Request) Approve(ctx context.Context) error {
	if r.app == nil {
		return fmt.Errorf("engine: approve without application")
	}
	certModel, ok := r.engine.products.CertificateFor(r.app.RequestFor)
	if !ok {
		return fmt.Errorf("engine: no certificate model for %s", r.app.RequestFor)
	}
	cert := domain.NewCertificate(r.app, certModel.ID)
	if err := r.engine.gw.Sign(ctx, &cert); err != nil {
		return fmt.Errorf("engine: sign certificate: %w", err)
	}
	domain.AddCertificate(r.user, r.app, cert.Stub())
	r.Queue(cert)
	r.engine.logger.Info("application approved", "user", r.userID, "product", r.app.RequestFor)
	return nil
}

// Deny denies the resolved application: the stub leaves the in-flight list,
// a snapshot is archived, and a denial message is queued.
func (r *Request) Deny(ctx context.Context) error {
	if r.app == nil {
		return fmt.Errorf("engine: deny without application")
	}
	domain.MoveToDenied(r.user, r.app)
	r.engine.archiveSnapshot(ctx, r.userID, r.app, "deny")
	domain.ArchiveApplication(r.user, r.app)
	r.Queue(domain.Resource{
		Envelope: domain.Envelope{Type: domain.TypeApplicationDenial, Context: domain.ApplicationContext(r.app)},
		Properties: map[string]any{
			"message": "your application was denied",
		},
	})
	r.engine.logger.Info("application denied", "user", r.userID, "product", r.app.RequestFor)
	return nil
}
