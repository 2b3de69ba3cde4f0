package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"applycore/pkg/domain"
	"applycore/pkg/hook"
)

// registerDefaults installs the baseline hook set the pipeline relies on
// unless a plugin overrides it. Type-specific handlers return Stop so the
// bubble does not fall through to a less specific handler afterwards.
func (e *Engine) registerDefaults() {
	e.hooks.Register(MessageHook(e.products.RequestType()), e.onProductRequest, false)
	e.hooks.Register(MessageHook(domain.TypeForm), e.onForm, false)
	e.hooks.Register(MessageHook(domain.TypeVerification), e.onVerification, false)
	e.hooks.Register(MessageHook(domain.TypeSelfIntroduction), e.onGreeting, false)
	e.hooks.Register(MessageHook(domain.TypeIdentityPublishRequest), e.onGreeting, false)
	e.hooks.Register(MessageHook(domain.TypeCustomerWaiting), e.onGreeting, false)
	e.hooks.Register(MessageHook(domain.TypeForgetMe), e.onForgetMe, false)
	e.hooks.Register(HookValidateForm, e.onValidateForm, false)
	e.hooks.Register(HookRequiredForms, e.onRequiredForms, false)
	e.hooks.Register(HookWillRequestForm, e.onWillRequestForm, false)
	e.hooks.Register(HookFormsCollected, e.onFormsCollected, false)
}

// onProductRequest handles the generated product-request form: resolve the
// product, then create or continue the application for it.
func (e *Engine) onProductRequest(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	product := req.object.StringProp("product")
	if !e.products.Offered(product) {
		// Not in the catalog: silently ignore, per contract.
		e.logger.Info("ignoring request for unoffered product", "user", req.userID, "product", product)
		return hook.Stop, nil
	}
	if req.app != nil {
		return hook.Stop, e.ContinueApplication(ctx, req)
	}
	if req.user.HasCertificate(product) {
		outcome, err := e.hooks.Exec(ctx, hook.Options{
			Hook:      HookExistingProduct,
			Payload:   req,
			AllowExit: true,
		})
		if err != nil {
			return nil, err
		}
		if outcome.Exited {
			return hook.Stop, nil
		}
	}
	app := domain.NewApplication(req.object, product)
	domain.AddApplication(req.user, app)
	req.attach(app)
	return hook.Stop, e.ContinueApplication(ctx, req)
}

// onForm validates a submitted form, requests an edit on failure, and
// otherwise appends the form and advances the cursor. Validation failures do
// not change the application status or the cursor.
func (e *Engine) onForm(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok || req.app == nil {
		return nil, nil
	}
	if req.app.RequestFor == domain.TypeRemediation {
		// Remediation imports bypass the normal form flow.
		return hook.Stop, nil
	}
	outcome, err := e.hooks.Exec(ctx, hook.Options{
		Hook:         HookValidateForm,
		Payload:      req,
		ReturnResult: true,
	})
	if err != nil {
		return nil, err
	}
	if vr, failed := outcome.Value.(*ValidationResult); failed {
		// Validation failures loop back to a request-edit message; the
		// application stays in started.
		e.requestEdit(req, vr)
		return hook.Stop, nil
	}
	domain.AddForm(req.app, req.object)
	return nil, e.ContinueApplication(ctx, req)
}

// requestEdit sends the validation errors back with a lightly redacted echo
// of the original payload for prefill.
func (e *Engine) requestEdit(req *Request, vr *ValidationResult) {
	prefill := redactForPrefill(req.object)
	req.Queue(domain.Resource{
		Envelope: domain.Envelope{Type: domain.TypeFormError},
		Properties: map[string]any{
			"message": vr.Message,
			"errors":  vr.Errors,
			"prefill": prefill,
		},
	})
}

// onValidateForm is the default validateForm handler.
func (e *Engine) onValidateForm(_ context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	if vr := e.validateForm(req.object); vr != nil {
		return vr, nil
	}
	return nil, nil
}

// onVerification imports a received verification for later reuse as a source.
func (e *Engine) onVerification(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	v, err := verificationFromResource(req.object)
	if err != nil {
		return nil, err
	}
	domain.ImportVerification(req.user, req.app, v)
	if req.app == nil {
		return nil, nil
	}
	return nil, e.ContinueApplication(ctx, req)
}

// onGreeting stores profile details when present and answers with a greeting
// and the product chooser. No application side effects.
func (e *Engine) onGreeting(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	if profile, ok := req.object.Prop("profile").(map[string]any); ok {
		for k, v := range profile {
			req.user.Profile[k] = v
		}
	}
	if req.user.Identity == nil {
		if permalink := req.object.StringProp("identity"); permalink != "" {
			if identity, found, err := e.gw.LookupIdentity(ctx, permalink); err != nil {
				e.logger.Warn("identity lookup failed", "user", req.userID, "permalink", permalink, "error", err)
			} else if found {
				stub := identity.Stub()
				req.user.Identity = &stub
			}
		}
	}
	greeting := "Hello!"
	if name, _ := req.user.Profile["firstName"].(string); name != "" {
		greeting = fmt.Sprintf("Hello %s!", name)
	}
	req.Queue(domain.Resource{
		Envelope:   domain.Envelope{Type: domain.TypeSimpleMessage},
		Properties: map[string]any{"message": greeting},
	})
	req.Queue(domain.Resource{
		Envelope: domain.Envelope{Type: domain.TypeFormRequest},
		Properties: map[string]any{
			"form":    e.products.RequestType(),
			"message": "Please choose a product",
		},
	})
	return nil, nil
}

// onForgetMe archives every application, deletes submitted forms and
// verifications, clears all forgettable user properties, and confirms.
func (e *Engine) onForgetMe(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	stubs := make([]domain.ApplicationStub, 0, len(req.user.Applications)+len(req.user.Certificates))
	stubs = append(stubs, req.user.Applications...)
	stubs = append(stubs, req.user.Certificates...)
	for _, stub := range stubs {
		if stub.Permalink == "" {
			continue
		}
		stored, found, err := e.gw.Get(ctx, domain.TypeApplication, stub.Permalink)
		if err != nil || !found {
			if err != nil {
				e.logger.Warn("forget: application lookup failed", "user", req.userID, "permalink", stub.Permalink, "error", err)
			}
			continue
		}
		var app domain.Application
		if err := json.Unmarshal(stored.Body, &app); err != nil {
			e.logger.Warn("forget: application unmarshal failed", "user", req.userID, "permalink", stub.Permalink, "error", err)
			continue
		}
		e.archiveSnapshot(ctx, req.userID, &app, "forget")
		for _, f := range app.Forms {
			if err := e.gw.Delete(ctx, f.Type, f.Permalink); err != nil {
				e.logger.Warn("forget: form delete failed", "user", req.userID, "permalink", f.Permalink, "error", err)
			}
		}
		for _, v := range append(append([]domain.VerificationStub{}, app.VerificationsIssued...), app.VerificationsImported...) {
			if v.Permalink == "" {
				continue
			}
			if err := e.gw.Delete(ctx, domain.TypeVerification, v.Permalink); err != nil {
				e.logger.Warn("forget: verification delete failed", "user", req.userID, "permalink", v.Permalink, "error", err)
			}
		}
		domain.ArchiveApplication(req.user, &app)
		if err := e.gw.VersionAndSave(ctx, &app); err != nil {
			e.logger.Warn("forget: application save failed", "user", req.userID, "permalink", app.Permalink, "error", err)
		}
	}
	domain.ClearForgettable(req.user)
	domain.InitUser(req.user)
	// The resolved application is gone from live state; keep decide from
	// writing another version.
	req.app = nil
	req.snapshot = nil
	req.Queue(domain.Resource{
		Envelope:   domain.Envelope{Type: domain.TypeForgotYou},
		Properties: map[string]any{"message": "All your data has been archived and unlinked."},
	})
	e.logger.Info("user forgotten", "user", req.userID)
	return hook.Stop, nil
}

// onRequiredForms returns the product model's declared forms verbatim. The
// override point for conditional form requirements.
func (e *Engine) onRequiredForms(_ context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok || req.app == nil {
		return nil, nil
	}
	model, found := e.registry.Get(req.app.RequestFor)
	if !found {
		return nil, UnknownModelError{Type: req.app.RequestFor}
	}
	forms := make([]string, 0, len(model.Forms))
	forms = append(forms, model.Forms...)
	return forms, nil
}

// onWillRequestForm picks the default prompt for the next requested item.
func (e *Engine) onWillRequestForm(_ context.Context, payload any) (any, error) {
	plan, ok := payload.(*FormRequestPlan)
	if !ok || plan.Prompt != "" {
		return nil, nil
	}
	switch {
	case plan.FormType == e.products.RequestType():
		plan.Prompt = "Please choose a product"
	case e.registry.IsProduct(plan.FormType):
		plan.Prompt = fmt.Sprintf("Please apply for %s first", titleFor(e, plan.FormType))
	default:
		plan.Prompt = fmt.Sprintf("Please fill out %s", titleFor(e, plan.FormType))
	}
	return plan, nil
}

// onFormsCollected approves the application by default. Strategies composing
// the engine override this to add a manual review gate.
func (e *Engine) onFormsCollected(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(*Request)
	if !ok {
		return nil, nil
	}
	return nil, req.Approve(ctx)
}

func titleFor(e *Engine, typ string) string {
	if model, ok := e.registry.Get(typ); ok && model.Title != "" {
		return model.Title
	}
	return typ
}

// verificationFromResource decodes the wire shape of a verification message.
func verificationFromResource(res domain.Resource) (domain.Verification, error) {
	v := domain.Verification{Envelope: res.Envelope}
	raw, err := json.Marshal(res.Properties)
	if err != nil {
		return v, fmt.Errorf("engine: decode verification: %w", err)
	}
	var body struct {
		Document     domain.Stub               `json:"document"`
		DateVerified time.Time                 `json:"dateVerified"`
		Sources      []domain.VerificationStub `json:"sources"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return v, fmt.Errorf("engine: decode verification: %w", err)
	}
	v.Document = body.Document
	v.Sources = body.Sources
	v.DateVerified = body.DateVerified
	if v.DateVerified.IsZero() {
		v.DateVerified = time.Now().UTC()
	}
	return v, nil
}
