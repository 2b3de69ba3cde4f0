package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"applycore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ Gateway       = (*InProcess)(nil)
	_ MessageSource = (*InProcess)(nil)
)

// InProcess implements Gateway over a domain.ResourceStore. Signatures are
// opaque stamps; deployments requiring real signatures wrap or replace this
// implementation.
type InProcess struct {
	mu       sync.Mutex
	store    domain.ResourceStore
	identity domain.Stub
	sent     []Outbound
	seals    []string
	handlers []*MessageHandler
	book     map[string]domain.Resource
}

// NewInProcess constructs an in-process gateway over the given store.
func NewInProcess(store domain.ResourceStore) *InProcess {
	return &InProcess{
		store:    store,
		identity: domain.Stub{Type: domain.TypeIdentity, Permalink: uuid.NewString()},
		book:     make(map[string]domain.Resource),
	}
}

// Sign stamps a signature and addressing links on the record in place.
// Already-signed records keep their signature.
func (g *InProcess) Sign(_ context.Context, rec domain.Record) error {
	h := rec.Header()
	if h.Sig == "" {
		h.Sig = "sig:" + uuid.NewString()
	}
	if h.Permalink == "" {
		h.Permalink = uuid.NewString()
	}
	if h.Link == "" {
		h.Link = h.Permalink
	}
	if h.Version == 0 {
		h.Version = 1
	}
	return nil
}

// Save persists the first version of a record, assigning links if absent.
func (g *InProcess) Save(ctx context.Context, rec domain.Record) error {
	h := rec.Header()
	if h.Permalink == "" {
		h.Permalink = uuid.NewString()
	}
	if h.Link == "" {
		h.Link = h.Permalink
	}
	if h.Version == 0 {
		h.Version = 1
	}
	return g.put(ctx, rec)
}

// VersionAndSave persists a new immutable version: a fresh link, the prior
// link preserved, and the version counter advanced.
func (g *InProcess) VersionAndSave(ctx context.Context, rec domain.Record) error {
	h := rec.Header()
	if h.Permalink == "" {
		return fmt.Errorf("gateway: cannot version unsaved %s resource", h.Type)
	}
	h.PrevLink = h.Link
	h.Link = uuid.NewString()
	h.Version++
	return g.put(ctx, rec)
}

func (g *InProcess) put(ctx context.Context, rec domain.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s: %w", rec.Header().Type, err)
	}
	return g.store.PutResource(ctx, domain.StoredResource{Envelope: *rec.Header(), Body: body})
}

// Get loads a stored resource by type and permalink.
func (g *InProcess) Get(ctx context.Context, typ, permalink string) (domain.StoredResource, bool, error) {
	return g.store.GetResource(ctx, typ, permalink)
}

// Delete removes a stored resource by type and permalink. Deleting an absent
// resource is not an error.
func (g *InProcess) Delete(ctx context.Context, typ, permalink string) error {
	_, err := g.store.DeleteResource(ctx, typ, permalink)
	return err
}

// Send signs, persists, and records one outbound message.
func (g *InProcess) Send(ctx context.Context, msg Outbound) (domain.Resource, error) {
	if err := g.Sign(ctx, &msg.Object); err != nil {
		return domain.Resource{}, err
	}
	if msg.Context != "" && msg.Object.Context == "" {
		msg.Object.Context = msg.Context
	}
	if err := g.put(ctx, &msg.Object); err != nil {
		return domain.Resource{}, err
	}
	g.mu.Lock()
	g.sent = append(g.sent, msg)
	g.mu.Unlock()
	return msg.Object, nil
}

// SendBatch delivers accumulated messages as one batch.
func (g *InProcess) SendBatch(ctx context.Context, msgs []Outbound) ([]domain.Resource, error) {
	out := make([]domain.Resource, 0, len(msgs))
	for _, msg := range msgs {
		res, err := g.Send(ctx, msg)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Seal records a seal request for a message link.
func (g *InProcess) Seal(_ context.Context, link string) error {
	g.mu.Lock()
	g.seals = append(g.seals, link)
	g.mu.Unlock()
	return nil
}

// Identity returns this side's identity stub.
func (g *InProcess) Identity(_ context.Context) (domain.Stub, error) {
	return g.identity, nil
}

// RegisterIdentity adds a counterparty identity to the address book.
func (g *InProcess) RegisterIdentity(permalink string, identity domain.Resource) {
	g.mu.Lock()
	g.book[permalink] = identity
	g.mu.Unlock()
}

// LookupIdentity resolves a counterparty identity by permalink.
func (g *InProcess) LookupIdentity(_ context.Context, permalink string) (domain.Resource, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.book[permalink]
	return res, ok, nil
}

// OnMessage subscribes a handler to inbound messages pushed via Deliver.
func (g *InProcess) OnMessage(h MessageHandler) func() {
	ptr := &h
	g.mu.Lock()
	g.handlers = append(g.handlers, ptr)
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, cur := range g.handlers {
			if cur == ptr {
				g.handlers = append(g.handlers[:i], g.handlers[i+1:]...)
				return
			}
		}
	}
}

// Deliver pushes one inbound message through subscribed handlers in order.
func (g *InProcess) Deliver(ctx context.Context, userID string, object domain.Resource) error {
	g.mu.Lock()
	handlers := make([]*MessageHandler, len(g.handlers))
	copy(handlers, g.handlers)
	g.mu.Unlock()
	for _, h := range handlers {
		if err := (*h)(ctx, userID, object); err != nil {
			return err
		}
	}
	return nil
}

// Sent returns a copy of all messages sent so far.
func (g *InProcess) Sent() []Outbound {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Outbound, len(g.sent))
	copy(out, g.sent)
	return out
}

// Seals returns a copy of all seal requests so far.
func (g *InProcess) Seals() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.seals))
	copy(out, g.seals)
	return out
}
