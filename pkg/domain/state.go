package domain

import (
	"time"

	"github.com/google/uuid"
)

// History bounds. The summary is human-facing context only, never
// authoritative state; each direction has its own quota so a burst of
// outbound prompts cannot evict the inbound trail.
const (
	HistoryLimit         = 10
	historyInboundQuota  = HistoryLimit / 2
	historyOutboundQuota = HistoryLimit - historyInboundQuota
)

// InitUser idempotently ensures the user's collections exist. Existing values
// are never overwritten.
func InitUser(u *User) {
	if u.Applications == nil {
		u.Applications = []ApplicationStub{}
	}
	if u.Certificates == nil {
		u.Certificates = []ApplicationStub{}
	}
	if u.ImportedVerifications == nil {
		u.ImportedVerifications = []VerificationStub{}
	}
	if u.IssuedVerifications == nil {
		u.IssuedVerifications = []VerificationStub{}
	}
	if u.HistorySummary == nil {
		u.HistorySummary = []HistoryEntry{}
	}
	if u.Profile == nil {
		u.Profile = map[string]any{}
	}
}

// NewApplication builds an unsigned application resource from a product
// request. The correlation context derives from the request's context or,
// failing that, its permalink.
func NewApplication(request Resource, requestFor string) *Application {
	ctx := request.Context
	if ctx == "" {
		ctx = request.Permalink
	}
	return &Application{
		Envelope:     Envelope{Type: TypeApplication, Context: ctx},
		RequestFor:   requestFor,
		Forms:        []FormStub{},
		Status:       StatusStarted,
		DateModified: time.Now().UTC(),
	}
}

// AddApplication appends an application stub to the user's in-flight list.
func AddApplication(u *User, app *Application) {
	u.Applications = append(u.Applications, ApplicationStub{
		RequestFor: app.RequestFor,
		Permalink:  app.Permalink,
		Context:    app.Context,
		Status:     app.Status,
	})
}

// AddForm appends a form stub to the application, deduplicating by the
// underlying resource permalink. The latest submission wins; prior entries
// for the same logical form are replaced, not duplicated.
func AddForm(app *Application, form Resource) {
	stub := FormStub{
		Type:        form.Type,
		Permalink:   form.Permalink,
		Link:        form.Link,
		SubmittedAt: time.Now().UTC(),
	}
	kept := app.Forms[:0]
	for _, f := range app.Forms {
		if f.Permalink != stub.Permalink {
			kept = append(kept, f)
		}
	}
	app.Forms = append(kept, stub)
	app.DateModified = stub.SubmittedAt
}

// NewVerification builds an unsigned verification for a form, defaulting
// DateVerified to now and Sources to prior imported verifications for the
// same item.
func NewVerification(app *Application, document Stub, imported []VerificationStub) Verification {
	var sources []VerificationStub
	for _, v := range imported {
		if v.Item.Permalink == document.Permalink {
			sources = append(sources, v)
		}
	}
	ctx := ""
	if app != nil {
		ctx = ApplicationContext(app)
	}
	return Verification{
		Envelope:     Envelope{Type: TypeVerification, Context: ctx},
		Document:     document,
		DateVerified: time.Now().UTC(),
		Sources:      sources,
	}
}

// AddVerification records a verification issued by this side.
func AddVerification(u *User, app *Application, v Verification) {
	stub := v.VStub()
	u.IssuedVerifications = append(u.IssuedVerifications, stub)
	if app != nil {
		app.VerificationsIssued = append(app.VerificationsIssued, stub)
		app.DateModified = time.Now().UTC()
	}
}

// ImportVerification records a verification received from a third party for
// later reuse as a source on verifications of the same item.
func ImportVerification(u *User, app *Application, v Verification) {
	stub := v.VStub()
	u.ImportedVerifications = append(u.ImportedVerifications, stub)
	if app != nil {
		app.VerificationsImported = append(app.VerificationsImported, stub)
		app.DateModified = time.Now().UTC()
	}
}

// NewCertificate builds an unsigned certificate resource of the given model
// with a fresh opaque product id.
func NewCertificate(app *Application, certType string) Resource {
	return Resource{
		Envelope: Envelope{Type: certType, Context: ApplicationContext(app)},
		Properties: map[string]any{
			"myProductId": uuid.NewString(),
		},
	}
}

// AddCertificate moves the application stub from the in-flight list to the
// certificate list and stamps the approved status. The move is atomic from
// the caller's perspective: no intermediate state escapes this call.
func AddCertificate(u *User, app *Application, cert Stub) {
	app.Status = StatusApproved
	app.Certificate = &cert
	app.DateModified = time.Now().UTC()
	stub, _ := removeApplicationStub(u, app)
	stub.RequestFor = app.RequestFor
	stub.Context = app.Context
	stub.Permalink = app.Permalink
	stub.Status = StatusApproved
	u.Certificates = append(u.Certificates, stub)
}

// SetApplicationStatus transitions the application status.
func SetApplicationStatus(app *Application, status ApplicationStatus) {
	app.Status = status
	app.DateModified = time.Now().UTC()
}

// MoveToDenied stamps the denied status and removes the stub from the
// in-flight list. Denied applications are not added to certificates; the
// caller archives them separately.
func MoveToDenied(u *User, app *Application) {
	SetApplicationStatus(app, StatusDenied)
	removeApplicationStub(u, app)
}

// ArchiveApplication marks the application archived and moves its stub to
// the user's archived set.
func ArchiveApplication(u *User, app *Application) {
	app.Archived = true
	app.DateModified = time.Now().UTC()
	stub, ok := removeApplicationStub(u, app)
	if !ok {
		stub = ApplicationStub{
			RequestFor: app.RequestFor,
			Permalink:  app.Permalink,
			Context:    app.Context,
		}
	}
	stub.Status = app.Status
	u.Archived = append(u.Archived, stub)
}

// ApplicationContext returns the correlation id stamped on outbound messages
// belonging to the application.
func ApplicationContext(app *Application) string {
	if app.Context != "" {
		return app.Context
	}
	return app.Permalink
}

// SyncApplicationStub refreshes the user's stub for the application after a
// save assigned or changed its permalink or status.
func SyncApplicationStub(u *User, app *Application) {
	for i := range u.Applications {
		if u.Applications[i].Context == app.Context {
			u.Applications[i].Permalink = app.Permalink
			u.Applications[i].Status = app.Status
		}
	}
	for i := range u.Certificates {
		if u.Certificates[i].Context == app.Context {
			u.Certificates[i].Permalink = app.Permalink
			u.Certificates[i].Status = app.Status
		}
	}
}

// AppendHistory records one message-type label in the bounded history ring.
func AppendHistory(u *User, messageType string, inbound bool) {
	u.HistorySummary = append(u.HistorySummary, HistoryEntry{
		Type:    messageType,
		Inbound: inbound,
		Time:    time.Now().UTC(),
	})
	quota := historyOutboundQuota
	if inbound {
		quota = historyInboundQuota
	}
	trimHistory(u, inbound, quota)
}

func trimHistory(u *User, inbound bool, quota int) {
	count := 0
	for _, e := range u.HistorySummary {
		if e.Inbound == inbound {
			count++
		}
	}
	for count > quota {
		for i, e := range u.HistorySummary {
			if e.Inbound == inbound {
				u.HistorySummary = append(u.HistorySummary[:i], u.HistorySummary[i+1:]...)
				break
			}
		}
		count--
	}
}

// ClearForgettable removes every forgettable property from the user,
// retaining only the stable id and resolved identity.
func ClearForgettable(u *User) {
	u.Profile = nil
	u.Applications = nil
	u.Certificates = nil
	u.Archived = nil
	u.ImportedVerifications = nil
	u.IssuedVerifications = nil
	u.HistorySummary = nil
}

func removeApplicationStub(u *User, app *Application) (ApplicationStub, bool) {
	for i, stub := range u.Applications {
		if stub.Context == app.Context {
			u.Applications = append(u.Applications[:i], u.Applications[i+1:]...)
			return stub, true
		}
	}
	for i, stub := range u.Certificates {
		if stub.Context == app.Context {
			u.Certificates = append(u.Certificates[:i], u.Certificates[i+1:]...)
			return stub, true
		}
	}
	return ApplicationStub{}, false
}
