package memory

import (
	"context"
	"testing"

	"applycore/pkg/domain"
)

func TestResourceCRUD(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	res := domain.StoredResource{
		Envelope: domain.Envelope{Type: "acme.Name", Permalink: "form-1", Link: "v1"},
		Body:     []byte(`{"properties":{"name":"Jo"}}`),
	}

	if err := s.PutResource(ctx, res); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.GetResource(ctx, "acme.Name", "form-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Envelope.Link != "v1" || string(got.Body) != string(res.Body) {
		t.Fatalf("got %+v", got)
	}

	// stored bytes are copies, not aliases
	got.Body[0] = 'X'
	again, _, _ := s.GetResource(ctx, "acme.Name", "form-1")
	if again.Body[0] == 'X' {
		t.Fatalf("store shares body backing array with callers")
	}

	if _, ok, _ := s.GetResource(ctx, "acme.Name", "missing"); ok {
		t.Fatalf("missing resource found")
	}

	removed, err := s.DeleteResource(ctx, "acme.Name", "form-1")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	removed, err = s.DeleteResource(ctx, "acme.Name", "form-1")
	if err != nil || removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
}

func TestListResourcesSorted(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, permalink := range []string{"c", "a", "b"} {
		if err := s.PutResource(ctx, domain.StoredResource{
			Envelope: domain.Envelope{Type: "acme.Name", Permalink: permalink},
			Body:     []byte(`{}`),
		}); err != nil {
			t.Fatalf("put %s: %v", permalink, err)
		}
	}
	out, err := s.ListResources(ctx, "acme.Name")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("list length = %d", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if out[i].Envelope.Permalink != want {
			t.Fatalf("list order = %v", out)
		}
	}
}

func TestUserRoundTripIsDeepCopied(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := &domain.User{ID: "alice"}
	domain.InitUser(u)
	u.Profile["firstName"] = "Alice"

	if err := s.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	u.Profile["firstName"] = "mutated-after-put"

	got, ok, err := s.GetUser(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("get user: ok=%v err=%v", ok, err)
	}
	if got.Profile["firstName"] != "Alice" {
		t.Fatalf("store aliased caller state: %v", got.Profile)
	}
	got.Profile["firstName"] = "mutated-after-get"
	again, _, _ := s.GetUser(ctx, "alice")
	if again.Profile["firstName"] != "Alice" {
		t.Fatalf("store state mutated through Get result: %v", again.Profile)
	}

	if _, ok, _ := s.GetUser(ctx, "bob"); ok {
		t.Fatalf("missing user found")
	}
}

func TestExportImportState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.PutResource(ctx, domain.StoredResource{
		Envelope: domain.Envelope{Type: "acme.Name", Permalink: "form-1"},
		Body:     []byte(`{}`),
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	u := &domain.User{ID: "alice"}
	domain.InitUser(u)
	if err := s.PutUser(ctx, u); err != nil {
		t.Fatalf("put user: %v", err)
	}

	snap := s.ExportState()

	fresh := NewStore()
	fresh.ImportState(snap)
	if _, ok, _ := fresh.GetResource(ctx, "acme.Name", "form-1"); !ok {
		t.Fatalf("resource lost through export/import")
	}
	if _, ok, _ := fresh.GetUser(ctx, "alice"); !ok {
		t.Fatalf("user lost through export/import")
	}

	// snapshot is detached from the live store
	if _, err := s.DeleteResource(ctx, "acme.Name", "form-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := fresh.GetResource(ctx, "acme.Name", "form-1"); !ok {
		t.Fatalf("import aliased the source store")
	}
}
