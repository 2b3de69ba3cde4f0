package engine

import (
	"fmt"

	"applycore/pkg/domain"
)

// PropertyError describes one invalid or missing property on a submitted form.
type PropertyError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ValidationResult is the structured outcome of form validation. It is a
// value consumed by the request-edit flow, not an error: validation failures
// are user-correctable and never abort message handling.
type ValidationResult struct {
	Message string          `json:"message"`
	Errors  []PropertyError `json:"errors"`
}

// validateForm checks the properties the model declares required and that the
// submission carries a signature. Returns nil when the form is acceptable.
func (e *Engine) validateForm(form domain.Resource) *ValidationResult {
	model, ok := e.registry.Get(form.Type)
	if !ok {
		return &ValidationResult{
			Message: fmt.Sprintf("unknown form type %s", form.Type),
			Errors:  []PropertyError{{Name: "_t", Message: "unknown type"}},
		}
	}
	var errs []PropertyError
	for _, name := range model.Required {
		if form.Prop(name) == nil {
			errs = append(errs, PropertyError{Name: name, Message: "required property missing"})
		}
	}
	if !form.Signed() {
		errs = append(errs, PropertyError{Name: "_s", Message: "form must be signed"})
	}
	if len(errs) == 0 {
		return nil
	}
	return &ValidationResult{
		Message: "please correct the errors below",
		Errors:  errs,
	}
}

// redactForPrefill strips the signature and addressing links from the
// original payload before echoing it back in an edit request.
func redactForPrefill(form domain.Resource) domain.Resource {
	cp := form
	cp.Sig = ""
	cp.Link = ""
	cp.PrevLink = ""
	if form.Properties != nil {
		cp.Properties = make(map[string]any, len(form.Properties))
		for k, v := range form.Properties {
			cp.Properties[k] = v
		}
	}
	return cp
}
