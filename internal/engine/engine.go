// Package engine implements the application progression pipeline: inbound
// messages are normalized into a request context, dispatched through named
// hooks, and the resulting application delta is persisted and answered with
// a batched set of outbound messages.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"applycore/internal/blob"
	"applycore/internal/gateway"
	"applycore/pkg/domain"
	"applycore/pkg/hook"
	"applycore/pkg/models"
	"applycore/pkg/pluginapi"
)

// Hook names the engine fires. Type-specific message hooks use the
// "onmessage:<type>" form; the bubble order is always generic first, then
// type, then declared supertype.
const (
	HookMessage            = "onmessage"
	HookValidateForm       = "validateForm"
	HookRequiredForms      = "getRequiredForms"
	HookWillRequestForm    = "willRequestForm"
	HookFormsCollected     = "onFormsCollected"
	HookExistingProduct    = "onApplicationForExistingProduct"
	HookDidReceive         = "didReceive"
	HookShouldSealReceived = "shouldSealReceived"
	HookModelsMissing      = "modelsMissing"
)

// MessageHook returns the type-specific hook name for a resource type.
func MessageHook(typ string) string { return HookMessage + ":" + typ }

// Config carries the collaborators and catalog the engine is built from.
type Config struct {
	// Namespace prefixes all generated model ids. Must not collide with the
	// built-in namespace.
	Namespace string
	// Products lists the product model ids offered by this deployment.
	Products []string
	// Registry holds the models the catalog references. Nil selects the
	// built-in base set.
	Registry *models.Registry
	// Gateway sends, signs, seals, and persists resources.
	Gateway gateway.Gateway
	// Users persists engine-owned user state.
	Users domain.UserStore
	// Archive retains snapshots of archived and denied applications. Nil
	// disables archiving.
	Archive blob.Store
}

// PluginMetadata records an installed plugin.
type PluginMetadata struct {
	Name    string
	Version string
	Hooks   []string
}

// UserObserver is notified when the engine first creates state for a user.
type UserObserver func(ctx context.Context, u *domain.User)

// ModelsMissingEvent is the payload of the modelsMissing hook: an inbound
// resource referenced a type absent from the registry. RegistryHash lets a
// handler notify the counterparty which schema set this side runs.
type ModelsMissingEvent struct {
	Type         string
	RegistryHash string
}

// Engine drives applications from product request to certificate. One engine
// serves many users; per-user message handling is serialized by the caller.
type Engine struct {
	namespace string
	registry  *models.Registry
	products  *models.Generated
	hooks     *hook.Dispatcher
	gw        gateway.Gateway
	users     domain.UserStore
	archive   blob.Store
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer

	mu        sync.Mutex
	plugins   map[string]PluginMetadata
	observers []*UserObserver
}

// New validates the catalog, synthesizes the derived models, and registers
// the default plugin set. Configuration errors are fatal: the caller must fix
// the catalog before installing the engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, ConfigError{Field: "Gateway", Reason: "required"}
	}
	if cfg.Users == nil {
		return nil, ConfigError{Field: "Users", Reason: "required"}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = models.Base()
	}
	products, err := models.Generate(cfg.Namespace, registry, cfg.Products)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		namespace: cfg.Namespace,
		registry:  registry,
		products:  products,
		hooks:     hook.New(),
		gw:        cfg.Gateway,
		users:     cfg.Users,
		archive:   cfg.Archive,
		logger:    noopLogger{},
		plugins:   make(map[string]PluginMetadata),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registerDefaults()
	return e, nil
}

// Hooks exposes the dispatcher for hook registration beyond InstallPlugin.
func (e *Engine) Hooks() *hook.Dispatcher { return e.hooks }

// Registry returns the model registry backing the engine.
func (e *Engine) Registry() *models.Registry { return e.registry }

// Products returns the generated catalog models.
func (e *Engine) Products() *models.Generated { return e.products }

// InstallPlugin registers a plugin's hook set. Duplicate names are rejected.
// Plugin hooks are prepended so they run before the defaults and can
// short-circuit them.
func (e *Engine) InstallPlugin(p pluginapi.Plugin) error {
	if p == nil {
		return fmt.Errorf("engine: nil plugin")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("engine: plugin name required")
	}
	e.mu.Lock()
	if _, exists := e.plugins[name]; exists {
		e.mu.Unlock()
		return fmt.Errorf("engine: plugin %s already installed", name)
	}
	e.mu.Unlock()

	set := p.Hooks()
	e.hooks.Use(set, true)

	hookNames := make([]string, 0, len(set))
	for hn := range set {
		hookNames = append(hookNames, hn)
	}
	sort.Strings(hookNames)
	e.mu.Lock()
	e.plugins[name] = PluginMetadata{Name: name, Version: p.Version(), Hooks: hookNames}
	e.mu.Unlock()
	e.logger.Info("plugin installed", "name", name, "version", p.Version())
	return nil
}

// Plugins returns installed plugin metadata sorted by name.
func (e *Engine) Plugins() []PluginMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PluginMetadata, 0, len(e.plugins))
	for _, meta := range e.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OnUserCreated subscribes an observer for first-contact user creation and
// returns an unsubscribe callback.
func (e *Engine) OnUserCreated(fn UserObserver) func() {
	ptr := &fn
	e.mu.Lock()
	e.observers = append(e.observers, ptr)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, cur := range e.observers {
			if cur == ptr {
				e.observers = append(e.observers[:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

// Subscribe attaches the engine to a message source. The returned callback
// detaches it.
func (e *Engine) Subscribe(src gateway.MessageSource) func() {
	return src.OnMessage(e.HandleMessage)
}

// HandleMessage runs the full pipeline for one inbound message: receive,
// dispatch, decide, send, seal. Dispatch and decide errors are logged with
// the user id and returned; the platform owns retry policy.
func (e *Engine) HandleMessage(ctx context.Context, userID string, object domain.Resource) error {
	return e.instrument(ctx, "handle_message", func(ctx context.Context) error {
		req, err := e.receive(ctx, userID, object)
		if err != nil {
			return err
		}
		dispatchErr := e.dispatch(ctx, req)
		if dispatchErr == nil {
			dispatchErr = e.decide(ctx, req)
		}
		if dispatchErr != nil {
			e.logger.Error("message handling failed", "user", userID, "type", object.Type, "error", dispatchErr)
		}
		if err := e.send(ctx, req); err != nil && dispatchErr == nil {
			dispatchErr = err
		}
		e.runDidReceive(ctx, req)
		if dispatchErr != nil {
			return dispatchErr
		}
		return e.seal(ctx, req)
	})
}

// receive normalizes the inbound message into a request context, resolving
// the user and updating the history summary.
func (e *Engine) receive(ctx context.Context, userID string, object domain.Resource) (*Request, error) {
	user, found, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: load user %s: %w", userID, err)
	}
	if !found {
		user = &domain.User{ID: userID}
	}
	domain.InitUser(user)
	if !found {
		e.notifyUserCreated(ctx, user)
	}
	if user.Identity == nil {
		// Best effort. A user without a resolvable identity is still served.
		if identity, ok, err := e.gw.LookupIdentity(ctx, userID); err != nil {
			e.logger.Warn("identity lookup failed", "user", userID, "error", err)
		} else if ok {
			stub := identity.Stub()
			user.Identity = &stub
		}
	}
	domain.AppendHistory(user, object.Type, true)

	contextID := object.Context
	if contextID == "" {
		contextID = object.Permalink
	}
	req := &Request{
		engine:    e,
		userID:    userID,
		user:      user,
		object:    object,
		contextID: contextID,
	}
	e.resolveApplication(ctx, req)
	return req, nil
}

// resolveApplication loads the application referenced by the message context
// and snapshots it for later change detection.
func (e *Engine) resolveApplication(ctx context.Context, req *Request) {
	stub, ok := req.user.FindApplication(req.contextID)
	if !ok || stub.Permalink == "" {
		return
	}
	stored, found, err := e.gw.Get(ctx, domain.TypeApplication, stub.Permalink)
	if err != nil || !found {
		if err != nil {
			e.logger.Warn("application lookup failed", "user", req.userID, "permalink", stub.Permalink, "error", err)
		}
		return
	}
	var app domain.Application
	if err := json.Unmarshal(stored.Body, &app); err != nil {
		e.logger.Warn("application unmarshal failed", "user", req.userID, "permalink", stub.Permalink, "error", err)
		return
	}
	req.app = &app
	req.snapshot = domain.CloneApplication(&app)
}

// dispatch bubbles the message through the hook chain: generic, then
// type-specific, then supertype. A Stop return anywhere halts the chain.
func (e *Engine) dispatch(ctx context.Context, req *Request) error {
	model, known := e.registry.Get(req.object.Type)
	if !known {
		hash, hashErr := e.registry.Hash()
		if hashErr != nil {
			e.logger.Warn("registry hash failed", "error", hashErr)
		}
		if _, err := e.hooks.Exec(ctx, hook.Options{
			Hook:    HookModelsMissing,
			Payload: ModelsMissingEvent{Type: req.object.Type, RegistryHash: hash},
		}); err != nil {
			e.logger.Warn("modelsMissing hook failed", "type", req.object.Type, "error", err)
		}
		return UnknownModelError{Type: req.object.Type}
	}

	keys := []string{HookMessage, MessageHook(req.object.Type)}
	if model.SubClassOf != "" {
		keys = append(keys, MessageHook(model.SubClassOf))
	}
	for _, key := range keys {
		outcome, err := e.hooks.Exec(ctx, hook.Options{
			Hook:      key,
			Payload:   pluginapi.Request(req),
			AllowExit: true,
		})
		if err != nil {
			return err
		}
		if outcome.Exited {
			return nil
		}
	}
	return nil
}

// decide persists the application when it changed relative to its snapshot,
// then persists the user.
func (e *Engine) decide(ctx context.Context, req *Request) error {
	if req.app != nil && !reflect.DeepEqual(req.snapshot, req.app) {
		var err error
		if req.app.Link == "" {
			err = e.gw.Save(ctx, req.app)
		} else {
			err = e.gw.VersionAndSave(ctx, req.app)
		}
		if err != nil {
			return fmt.Errorf("engine: persist application: %w", err)
		}
		domain.SyncApplicationStub(req.user, req.app)
	}
	if err := e.users.PutUser(ctx, req.user); err != nil {
		return fmt.Errorf("engine: persist user %s: %w", req.userID, err)
	}
	return nil
}

// send flushes the accumulated outbound queue as one batch and records each
// sent message in the outbound history.
func (e *Engine) send(ctx context.Context, req *Request) error {
	if len(req.queue) == 0 {
		return nil
	}
	sent, err := e.gw.SendBatch(ctx, req.queue)
	for _, res := range sent {
		domain.AppendHistory(req.user, res.Type, false)
	}
	if len(sent) > 0 {
		if perr := e.users.PutUser(ctx, req.user); perr != nil {
			e.logger.Warn("history persist failed", "user", req.userID, "error", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("engine: send batch: %w", err)
	}
	req.queue = nil
	return nil
}

// runDidReceive fires the didReceive hook. Errors are logged, never
// propagated: the hook is best-effort by contract.
func (e *Engine) runDidReceive(ctx context.Context, req *Request) {
	if _, err := e.hooks.Exec(ctx, hook.Options{
		Hook:    HookDidReceive,
		Payload: pluginapi.Request(req),
	}); err != nil {
		e.logger.Warn("didReceive hook failed", "user", req.userID, "error", err)
	}
}

// seal asks the shouldSealReceived hook whether to request a cryptographic
// seal of the inbound message link.
func (e *Engine) seal(ctx context.Context, req *Request) error {
	if req.object.Link == "" {
		return nil
	}
	outcome, err := e.hooks.Exec(ctx, hook.Options{
		Hook:         HookShouldSealReceived,
		Payload:      pluginapi.Request(req),
		ReturnResult: true,
		AllowExit:    true,
	})
	if err != nil {
		return err
	}
	if outcome.Exited {
		return nil
	}
	if agree, _ := outcome.Value.(bool); !agree {
		return nil
	}
	return e.instrument(ctx, "seal", func(ctx context.Context) error {
		return e.gw.Seal(ctx, req.object.Link)
	})
}

// ContinueApplication advances the required-forms cursor: request the first
// missing form, or fire onFormsCollected when all are present.
func (e *Engine) ContinueApplication(ctx context.Context, req *Request) error {
	if req.app == nil {
		return fmt.Errorf("engine: continue without application")
	}
	forms, err := e.requiredForms(ctx, req)
	if err != nil {
		return err
	}
	for _, formType := range forms {
		if !req.app.HasForm(formType) {
			return e.requestForm(ctx, req, formType)
		}
	}
	_, err = e.hooks.Exec(ctx, hook.Options{
		Hook:      HookFormsCollected,
		Payload:   pluginapi.Request(req),
		AllowExit: true,
	})
	return err
}

// requiredForms resolves the product's form list through the
// getRequiredForms hook; the first handler returning a non-nil list wins.
func (e *Engine) requiredForms(ctx context.Context, req *Request) ([]string, error) {
	outcome, err := e.hooks.Exec(ctx, hook.Options{
		Hook:         HookRequiredForms,
		Payload:      pluginapi.Request(req),
		ReturnResult: true,
	})
	if err != nil {
		return nil, err
	}
	forms, ok := outcome.Value.([]string)
	if !ok {
		return nil, fmt.Errorf("engine: no required forms for %s", req.app.RequestFor)
	}
	return forms, nil
}

// requestForm queues a form request for the user, letting willRequestForm
// handlers shape the prompt.
func (e *Engine) requestForm(ctx context.Context, req *Request, formType string) error {
	plan := &FormRequestPlan{Request: req, FormType: formType, Product: req.app.RequestFor}
	outcome, err := e.hooks.Exec(ctx, hook.Options{
		Hook:      HookWillRequestForm,
		Payload:   plan,
		Waterfall: true,
	})
	if err != nil {
		return err
	}
	if p, ok := outcome.Value.(*FormRequestPlan); ok {
		plan = p
	}
	req.Queue(domain.Resource{
		Envelope: domain.Envelope{Type: domain.TypeFormRequest, Context: domain.ApplicationContext(req.app)},
		Properties: map[string]any{
			"form":    plan.FormType,
			"product": plan.Product,
			"message": plan.Prompt,
		},
	})
	return nil
}

// FormRequestPlan is the waterfall payload of the willRequestForm hook.
// Handlers may adjust the prompt before the form request is queued.
type FormRequestPlan struct {
	Request  *Request
	FormType string
	Product  string
	Prompt   string
}

func (e *Engine) notifyUserCreated(ctx context.Context, u *domain.User) {
	e.mu.Lock()
	observers := make([]*UserObserver, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()
	for _, fn := range observers {
		(*fn)(ctx, u)
	}
}
