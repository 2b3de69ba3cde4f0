package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"applycore/internal/infra/persistence/memory"
	"applycore/pkg/domain"
)

func newTestGateway() *InProcess {
	return NewInProcess(memory.NewStore())
}

func TestSignIdempotent(t *testing.T) {
	g := newTestGateway()
	res := domain.Resource{Envelope: domain.Envelope{Type: "acme.Name"}}
	if err := g.Sign(context.Background(), &res); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if res.Sig == "" || res.Permalink == "" || res.Link == "" || res.Version != 1 {
		t.Fatalf("envelope not stamped: %+v", res.Envelope)
	}
	sig, link := res.Sig, res.Link
	if err := g.Sign(context.Background(), &res); err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if res.Sig != sig || res.Link != link {
		t.Fatalf("re-sign changed envelope: %+v", res.Envelope)
	}
}

func TestSaveAndVersionAndSave(t *testing.T) {
	g := newTestGateway()
	ctx := context.Background()
	app := &domain.Application{Envelope: domain.Envelope{Type: domain.TypeApplication}, RequestFor: "acme.Visa"}

	if err := g.Save(ctx, app); err != nil {
		t.Fatalf("save: %v", err)
	}
	if app.Permalink == "" || app.Link != app.Permalink || app.Version != 1 {
		t.Fatalf("save did not assign links: %+v", app.Envelope)
	}

	firstLink := app.Link
	app.Status = domain.StatusFormBad
	if err := g.VersionAndSave(ctx, app); err != nil {
		t.Fatalf("version and save: %v", err)
	}
	if app.PrevLink != firstLink || app.Link == firstLink || app.Version != 2 {
		t.Fatalf("version chain broken: %+v", app.Envelope)
	}

	stored, ok, err := g.Get(ctx, domain.TypeApplication, app.Permalink)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	var loaded domain.Application
	if err := json.Unmarshal(stored.Body, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if loaded.Status != domain.StatusFormBad || loaded.Version != 2 {
		t.Fatalf("stored version stale: %+v", loaded)
	}
}

func TestVersionAndSaveRequiresPermalink(t *testing.T) {
	g := newTestGateway()
	app := &domain.Application{Envelope: domain.Envelope{Type: domain.TypeApplication}}
	if err := g.VersionAndSave(context.Background(), app); err == nil {
		t.Fatalf("versioning an unsaved record succeeded")
	}
}

func TestSendRecordsAndStampsContext(t *testing.T) {
	g := newTestGateway()
	res, err := g.Send(context.Background(), Outbound{
		To:      "alice",
		Object:  domain.Resource{Envelope: domain.Envelope{Type: domain.TypeSimpleMessage}, Properties: map[string]any{"message": "hi"}},
		Context: "ctx-1",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Sig == "" || res.Context != "ctx-1" {
		t.Fatalf("sent object = %+v", res.Envelope)
	}
	sent := g.Sent()
	if len(sent) != 1 || sent[0].To != "alice" {
		t.Fatalf("sent log = %+v", sent)
	}
}

func TestSendBatchOrder(t *testing.T) {
	g := newTestGateway()
	out, err := g.SendBatch(context.Background(), []Outbound{
		{To: "alice", Object: domain.Resource{Envelope: domain.Envelope{Type: domain.TypeSimpleMessage}}},
		{To: "alice", Object: domain.Resource{Envelope: domain.Envelope{Type: domain.TypeFormRequest}}},
	})
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if len(out) != 2 || out[0].Type != domain.TypeSimpleMessage || out[1].Type != domain.TypeFormRequest {
		t.Fatalf("batch out = %+v", out)
	}
}

func TestSealRecordsLink(t *testing.T) {
	g := newTestGateway()
	if err := g.Seal(context.Background(), "link-1"); err != nil {
		t.Fatalf("seal: %v", err)
	}
	seals := g.Seals()
	if len(seals) != 1 || seals[0] != "link-1" {
		t.Fatalf("seals = %v", seals)
	}
}

func TestDeliverAndUnsubscribe(t *testing.T) {
	g := newTestGateway()
	var got []string
	unsub := g.OnMessage(func(_ context.Context, userID string, object domain.Resource) error {
		got = append(got, userID+":"+object.Type)
		return nil
	})

	if err := g.Deliver(context.Background(), "alice", domain.Resource{Envelope: domain.Envelope{Type: domain.TypeCustomerWaiting}}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	unsub()
	unsub() // idempotent
	if err := g.Deliver(context.Background(), "alice", domain.Resource{Envelope: domain.Envelope{Type: domain.TypeCustomerWaiting}}); err != nil {
		t.Fatalf("deliver after unsubscribe: %v", err)
	}
	if len(got) != 1 || got[0] != "alice:tradle.CustomerWaiting" {
		t.Fatalf("handler calls = %v", got)
	}
}

func TestIdentityBook(t *testing.T) {
	g := newTestGateway()
	self, err := g.Identity(context.Background())
	if err != nil || self.Permalink == "" || self.Type != domain.TypeIdentity {
		t.Fatalf("identity = %+v err=%v", self, err)
	}

	if _, ok, _ := g.LookupIdentity(context.Background(), "bob"); ok {
		t.Fatalf("unknown identity resolved")
	}
	g.RegisterIdentity("bob", domain.Resource{Envelope: domain.Envelope{Type: domain.TypeIdentity, Permalink: "bob"}})
	res, ok, err := g.LookupIdentity(context.Background(), "bob")
	if err != nil || !ok || res.Permalink != "bob" {
		t.Fatalf("lookup: res=%+v ok=%v err=%v", res, ok, err)
	}
}

func TestDeleteAbsentIsNotError(t *testing.T) {
	g := newTestGateway()
	if err := g.Delete(context.Background(), domain.TypeApplication, "missing"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
