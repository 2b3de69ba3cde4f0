// Package models provides the schema registry and model generator backing
// the application progression engine. Models are JSON-schema-flavored
// fragments; the registry answers type questions (is this a form? what forms
// does this product require?) without owning a schema language.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"applycore/pkg/domain"
)

// Model describes one schema-typed resource kind.
type Model struct {
	ID         string         `json:"id"`
	Title      string         `json:"title,omitempty"`
	SubClassOf string         `json:"sub_class_of,omitempty"`
	Forms      []string       `json:"forms,omitempty"`
	Required   []string       `json:"required,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Clone returns a deep copy so registry consumers cannot mutate shared state.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Forms = append([]string(nil), m.Forms...)
	cp.Required = append([]string(nil), m.Required...)
	if m.Properties != nil {
		cp.Properties = make(map[string]any, len(m.Properties))
		for k, v := range m.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

// Registry stores models by id. Lookups that derive from the model set
// (content hash, form/product classification) are memoized explicitly and
// invalidated when the set changes.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
	hash   string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Base returns a registry seeded with the built-in message models consumed
// by the default plugin set.
func Base() *Registry {
	r := NewRegistry()
	seed := []*Model{
		{ID: domain.TypeForm, Title: "Form"},
		{ID: domain.TypeFinancialProduct, Title: "Financial Product"},
		{ID: domain.TypeMyProduct, Title: "My Product"},
		{ID: domain.TypeVerification, Title: "Verification", Required: []string{"document"}},
		{ID: domain.TypeFormRequest, Title: "Form Request"},
		{ID: domain.TypeFormError, Title: "Form Error"},
		{ID: domain.TypeSelfIntroduction, Title: "Self Introduction"},
		{ID: domain.TypeIdentityPublishRequest, Title: "Identity Publish Request"},
		{ID: domain.TypeCustomerWaiting, Title: "Customer Waiting"},
		{ID: domain.TypeForgetMe, Title: "Forget Me"},
		{ID: domain.TypeForgotYou, Title: "Forgot You"},
		{ID: domain.TypeApplicationDenial, Title: "Application Denial"},
		{ID: domain.TypeSimpleMessage, Title: "Simple Message", Required: []string{"message"}},
		{ID: domain.TypeRemediation, Title: "Remediation", SubClassOf: domain.TypeFinancialProduct},
		{ID: domain.TypeApplication, Title: "Application"},
		{ID: domain.TypeIdentity, Title: "Identity"},
	}
	for _, m := range seed {
		// Seed models have unique ids; Add cannot fail here.
		_ = r.Add(m)
	}
	return r
}

// Add registers a model. Duplicate ids are rejected.
func (r *Registry) Add(m *Model) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("models: model id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.ID]; exists {
		return fmt.Errorf("models: model %s already registered", m.ID)
	}
	r.models[m.ID] = m.Clone()
	r.hash = ""
	return nil
}

// Get returns the model for an id.
func (r *Registry) Get(id string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// List returns all models sorted by id.
func (r *Registry) List() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsForm reports whether the type identifies a form, walking the superclass
// chain.
func (r *Registry) IsForm(id string) bool {
	return r.isSubClassOf(id, domain.TypeForm)
}

// IsProduct reports whether the type identifies a product, walking the
// superclass chain.
func (r *Registry) IsProduct(id string) bool {
	return r.isSubClassOf(id, domain.TypeFinancialProduct)
}

func (r *Registry) isSubClassOf(id, base string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for steps := 0; steps < 16; steps++ {
		if id == base {
			return true
		}
		m, ok := r.models[id]
		if !ok || m.SubClassOf == "" {
			return false
		}
		id = m.SubClassOf
	}
	return false
}

// Hash returns a deterministic digest of the registered model set, used to
// notify counterparties of schema changes. The digest is computed once and
// cached until the set changes.
func (r *Registry) Hash() (string, error) {
	r.mu.RLock()
	if r.hash != "" {
		defer r.mu.RUnlock()
		return r.hash, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hash != "" {
		return r.hash, nil
	}
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		raw, err := json.Marshal(r.models[id])
		if err != nil {
			return "", fmt.Errorf("models: hash %s: %w", id, err)
		}
		h.Write(raw)
	}
	r.hash = hex.EncodeToString(h.Sum(nil))
	return r.hash, nil
}
