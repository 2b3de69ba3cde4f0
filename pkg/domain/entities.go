// Package domain defines the core persistent entities, value types, and
// pure state-transition functions used by applycore.
package domain

import (
	"encoding/json"
	"time"
)

// Built-in resource type identifiers shared by the engine, the model
// registry, and the default plugin set.
const (
	TypeForm                   = "tradle.Form"
	TypeFinancialProduct       = "tradle.FinancialProduct"
	TypeMyProduct              = "tradle.MyProduct"
	TypeVerification           = "tradle.Verification"
	TypeFormRequest            = "tradle.FormRequest"
	TypeFormError              = "tradle.FormError"
	TypeSelfIntroduction       = "tradle.SelfIntroduction"
	TypeIdentityPublishRequest = "tradle.IdentityPublishRequest"
	TypeCustomerWaiting        = "tradle.CustomerWaiting"
	TypeForgetMe               = "tradle.ForgetMe"
	TypeForgotYou              = "tradle.ForgotYou"
	TypeApplicationDenial      = "tradle.ApplicationDenial"
	TypeSimpleMessage          = "tradle.SimpleMessage"
	TypeRemediation            = "tradle.Remediation"
	TypeApplication            = "tradle.Application"
	TypeIdentity               = "tradle.Identity"
)

// Envelope carries the addressing and signing header shared by every
// resource. Link identifies one immutable version, Permalink identifies the
// logical resource across versions, and PrevLink chains versions together.
type Envelope struct {
	Type      string `json:"type"`
	Link      string `json:"link,omitempty"`
	Permalink string `json:"permalink,omitempty"`
	PrevLink  string `json:"prev_link,omitempty"`
	Version   int    `json:"version,omitempty"`
	Sig       string `json:"sig,omitempty"`
	Context   string `json:"context,omitempty"`
}

// Header returns the envelope itself so concrete resources satisfy Record by
// embedding.
func (e *Envelope) Header() *Envelope { return e }

// Signed reports whether the resource carries a signature.
func (e *Envelope) Signed() bool { return e.Sig != "" }

// Stub builds a lightweight reference to the resource.
func (e *Envelope) Stub() Stub {
	return Stub{Type: e.Type, Permalink: e.Permalink, Link: e.Link}
}

// Record is any resource exposing an addressing header. The gateway persists
// records without knowing their concrete shape.
type Record interface {
	Header() *Envelope
}

// Resource is a schema-typed payload with free-form properties. Payload
// shapes are described by the model registry, not parsed structurally here.
type Resource struct {
	Envelope
	Properties map[string]any `json:"properties,omitempty"`
}

// Prop returns a named property or nil.
func (r Resource) Prop(name string) any {
	if r.Properties == nil {
		return nil
	}
	return r.Properties[name]
}

// StringProp returns a named property coerced to string, or "".
func (r Resource) StringProp(name string) string {
	s, _ := r.Prop(name).(string)
	return s
}

// Stub references a full resource without embedding it.
type Stub struct {
	Type      string `json:"type"`
	Permalink string `json:"permalink"`
	Link      string `json:"link,omitempty"`
	Title     string `json:"title,omitempty"`
}

// FormStub references a submitted form within an application.
type FormStub struct {
	Type        string    `json:"type"`
	Permalink   string    `json:"permalink"`
	Link        string    `json:"link,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// VerificationStub references a verification and the item it verifies.
type VerificationStub struct {
	Permalink    string    `json:"permalink,omitempty"`
	Item         Stub      `json:"item"`
	DateVerified time.Time `json:"date_verified"`
}

// Verification attests that a specific form instance was checked. Sources
// carry prior verifications contributing trust for the same item.
type Verification struct {
	Envelope
	Document     Stub               `json:"document"`
	DateVerified time.Time          `json:"date_verified"`
	Sources      []VerificationStub `json:"sources,omitempty"`
}

// VStub builds the bookkeeping stub recorded on users and applications.
func (v Verification) VStub() VerificationStub {
	return VerificationStub{Permalink: v.Permalink, Item: v.Document, DateVerified: v.DateVerified}
}

// ApplicationStatus enumerates the application lifecycle states.
type ApplicationStatus string

// Canonical application statuses. Transitions are irreversible; archival is
// an orthogonal axis tracked on the application record.
const (
	StatusStarted ApplicationStatus = "started"
	// StatusFormBad is part of the wire enum but never produced here: a
	// failed form validation loops back to a request-edit message with the
	// application staying in started. External writers may set it and the
	// value round-trips untouched.
	StatusFormBad  ApplicationStatus = "started-but-one-form-bad"
	StatusApproved ApplicationStatus = "approved"
	StatusDenied   ApplicationStatus = "denied"
)

// Application is a single product request's lifecycle record, persisted as
// its own versioned resource.
type Application struct {
	Envelope
	RequestFor            string             `json:"request_for"`
	Forms                 []FormStub         `json:"forms"`
	VerificationsIssued   []VerificationStub `json:"verifications_issued,omitempty"`
	VerificationsImported []VerificationStub `json:"verifications_imported,omitempty"`
	Status                ApplicationStatus  `json:"status"`
	Certificate           *Stub              `json:"certificate,omitempty"`
	Archived              bool               `json:"archived,omitempty"`
	DateModified          time.Time          `json:"date_modified"`
}

// HasForm reports whether a form of the given type has been submitted.
func (a *Application) HasForm(formType string) bool {
	for _, f := range a.Forms {
		if f.Type == formType {
			return true
		}
	}
	return false
}

// CloneApplication returns a deep copy used for change detection snapshots.
func CloneApplication(a *Application) *Application {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var cp Application
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil
	}
	return &cp
}

// ApplicationStub is the per-user list entry referencing an application.
type ApplicationStub struct {
	RequestFor string            `json:"request_for"`
	Permalink  string            `json:"permalink,omitempty"`
	Context    string            `json:"context"`
	Status     ApplicationStatus `json:"status"`
}

// HistoryEntry is one human-facing line in a user's bounded message history.
type HistoryEntry struct {
	Type    string    `json:"type"`
	Inbound bool      `json:"inbound"`
	Time    time.Time `json:"time"`
}

// User aggregates all engine-owned state for one counterparty. Identity and
// ID survive the forget-me flow; everything else is forgettable.
type User struct {
	ID                    string             `json:"id"`
	Identity              *Stub              `json:"identity,omitempty"`
	Profile               map[string]any     `json:"profile,omitempty"`
	Applications          []ApplicationStub  `json:"applications"`
	Certificates          []ApplicationStub  `json:"certificates"`
	Archived              []ApplicationStub  `json:"archived,omitempty"`
	ImportedVerifications []VerificationStub `json:"imported_verifications"`
	IssuedVerifications   []VerificationStub `json:"issued_verifications"`
	HistorySummary        []HistoryEntry     `json:"history_summary"`
}

// FindApplication locates the in-flight application stub for a context.
func (u *User) FindApplication(contextID string) (ApplicationStub, bool) {
	for _, stub := range u.Applications {
		if stub.Context == contextID {
			return stub, true
		}
	}
	return ApplicationStub{}, false
}

// HasCertificate reports whether the user already holds a certificate for
// the given product.
func (u *User) HasCertificate(productID string) bool {
	for _, stub := range u.Certificates {
		if stub.RequestFor == productID {
			return true
		}
	}
	return false
}

// CloneUser returns a deep copy of the user state.
func CloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return nil
	}
	var cp User
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil
	}
	return &cp
}
