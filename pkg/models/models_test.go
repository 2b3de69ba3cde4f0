package models

import (
	"testing"

	"applycore/pkg/domain"
)

func TestBaseSeedsBuiltins(t *testing.T) {
	r := Base()
	for _, id := range []string{
		domain.TypeForm,
		domain.TypeFinancialProduct,
		domain.TypeVerification,
		domain.TypeSimpleMessage,
		domain.TypeForgetMe,
	} {
		if _, ok := r.Get(id); !ok {
			t.Fatalf("base registry missing %s", id)
		}
	}
	verification, _ := r.Get(domain.TypeVerification)
	if len(verification.Required) != 1 || verification.Required[0] != "document" {
		t.Fatalf("verification required = %v", verification.Required)
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(&Model{ID: "acme.Name"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(&Model{ID: "acme.Name"}); err == nil {
		t.Fatalf("duplicate add succeeded")
	}
	if err := r.Add(&Model{}); err == nil {
		t.Fatalf("add without id succeeded")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(&Model{ID: "acme.Name", Required: []string{"name"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	m, _ := r.Get("acme.Name")
	m.Required[0] = "mutated"
	again, _ := r.Get("acme.Name")
	if again.Required[0] != "name" {
		t.Fatalf("registry state mutated through Get result")
	}
}

func TestClassificationWalksSuperclassChain(t *testing.T) {
	r := Base()
	if err := r.Add(&Model{ID: "acme.BaseForm", SubClassOf: domain.TypeForm}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(&Model{ID: "acme.Name", SubClassOf: "acme.BaseForm"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(&Model{ID: "acme.Visa", SubClassOf: domain.TypeFinancialProduct}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if !r.IsForm("acme.Name") {
		t.Fatalf("two-step subclass not recognized as form")
	}
	if r.IsForm("acme.Visa") {
		t.Fatalf("product classified as form")
	}
	if !r.IsProduct("acme.Visa") {
		t.Fatalf("product not recognized")
	}
	if !r.IsProduct(domain.TypeRemediation) {
		t.Fatalf("remediation should classify as product")
	}
	if r.IsForm("acme.Unknown") {
		t.Fatalf("unknown type classified as form")
	}
}

func TestHashMemoizedAndInvalidated(t *testing.T) {
	r := Base()
	h1, err := r.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := r.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not stable: %s vs %s", h1, h2)
	}
	if err := r.Add(&Model{ID: "acme.Name", SubClassOf: domain.TypeForm}); err != nil {
		t.Fatalf("add: %v", err)
	}
	h3, err := r.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("hash not invalidated by Add")
	}
}

func TestGenerate(t *testing.T) {
	r := Base()
	if err := r.Add(&Model{ID: "acme.Visa", Title: "Visa Card", SubClassOf: domain.TypeFinancialProduct, Forms: []string{"acme.Name"}}); err != nil {
		t.Fatalf("add: %v", err)
	}

	g, err := Generate("acme", r, []string{"acme.Visa"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if g.RequestType() != "acme.ProductRequest" {
		t.Fatalf("request type = %s", g.RequestType())
	}
	req, ok := r.Get("acme.ProductRequest")
	if !ok {
		t.Fatalf("request model not registered")
	}
	if req.SubClassOf != domain.TypeForm {
		t.Fatalf("request subclass = %s", req.SubClassOf)
	}
	if len(req.Required) != 1 || req.Required[0] != "product" {
		t.Fatalf("request required = %v", req.Required)
	}
	if !g.Offered("acme.Visa") || g.Offered("acme.Loan") {
		t.Fatalf("offered set wrong")
	}
	cert, ok := g.CertificateFor("acme.Visa")
	if !ok {
		t.Fatalf("certificate model missing")
	}
	if cert.ID != "acme.MyVisa" {
		t.Fatalf("certificate id = %s", cert.ID)
	}
	if cert.Title != "My Visa Card" {
		t.Fatalf("certificate title = %s", cert.Title)
	}
	if _, ok := r.Get("acme.MyVisa"); !ok {
		t.Fatalf("certificate model not registered")
	}
}

func TestGenerateConfigErrors(t *testing.T) {
	newRegistry := func() *Registry {
		r := Base()
		if err := r.Add(&Model{ID: "acme.Visa", SubClassOf: domain.TypeFinancialProduct}); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := r.Add(&Model{ID: "acme.Name", SubClassOf: domain.TypeForm}); err != nil {
			t.Fatalf("add: %v", err)
		}
		return r
	}

	if _, err := Generate("", newRegistry(), []string{"acme.Visa"}); err != ErrMissingNamespace {
		t.Fatalf("empty namespace: %v", err)
	}
	if _, err := Generate("tradle", newRegistry(), []string{"acme.Visa"}); err != ErrReservedNamespace {
		t.Fatalf("reserved namespace: %v", err)
	}
	if _, err := Generate("acme", newRegistry(), nil); err != ErrNoProducts {
		t.Fatalf("no products: %v", err)
	}
	if _, err := Generate("acme", newRegistry(), []string{"acme.Missing"}); err == nil {
		t.Fatalf("unknown product accepted")
	} else if _, ok := err.(UnknownProductError); !ok {
		t.Fatalf("unknown product error type: %T", err)
	}
	if _, err := Generate("acme", newRegistry(), []string{"acme.Name"}); err == nil {
		t.Fatalf("non-product accepted")
	} else if _, ok := err.(NotProductError); !ok {
		t.Fatalf("not-product error type: %T", err)
	}
	if _, err := Generate("acme", newRegistry(), []string{domain.TypeFinancialProduct}); err == nil {
		t.Fatalf("base product type accepted")
	}
}

func TestTitleOf(t *testing.T) {
	if got := titleOf(nil); got != "" {
		t.Fatalf("titleOf(nil) = %q", got)
	}
	if got := titleOf(&Model{ID: "acme.Visa", Title: "My Visa"}); got != "My Visa" {
		t.Fatalf("titled model = %q", got)
	}
	if got := titleOf(&Model{ID: "acme.Visa"}); got != "Visa" {
		t.Fatalf("untitled model = %q", got)
	}
}
