package models

import (
	"errors"
	"fmt"
	"strings"

	"applycore/pkg/domain"
)

// Configuration errors reported at generation time. All are fatal: the
// caller must fix the catalog before installing the engine.
var (
	ErrMissingNamespace  = errors.New("models: namespace required")
	ErrReservedNamespace = errors.New(`models: namespace "tradle" is reserved`)
	ErrNoProducts        = errors.New("models: at least one product model required")
)

// UnknownProductError reports a catalog entry absent from the registry.
type UnknownProductError struct {
	ID string
}

func (e UnknownProductError) Error() string {
	return fmt.Sprintf("models: unknown product model %s", e.ID)
}

// NotProductError reports a catalog entry that is not a product model.
type NotProductError struct {
	ID string
}

func (e NotProductError) Error() string {
	return fmt.Sprintf("models: %s is not a product model", e.ID)
}

// Generated holds the models synthesized from a product catalog: the
// product-list enum, the product-request form, and one certificate model per
// product.
type Generated struct {
	Namespace    string
	ProductList  *Model
	Request      *Model
	certificates map[string]*Model
	offered      map[string]bool
}

// Generate validates the catalog and synthesizes the derived models,
// registering them into the supplied registry.
func Generate(namespace string, registry *Registry, productIDs []string) (*Generated, error) {
	if namespace == "" {
		return nil, ErrMissingNamespace
	}
	if namespace == "tradle" || strings.HasPrefix(namespace, "tradle.") {
		return nil, ErrReservedNamespace
	}
	if len(productIDs) == 0 {
		return nil, ErrNoProducts
	}
	for _, id := range productIDs {
		if _, ok := registry.Get(id); !ok {
			return nil, UnknownProductError{ID: id}
		}
		if id == domain.TypeFinancialProduct || !registry.IsProduct(id) {
			return nil, NotProductError{ID: id}
		}
	}

	g := &Generated{
		Namespace:    namespace,
		certificates: make(map[string]*Model, len(productIDs)),
		offered:      make(map[string]bool, len(productIDs)),
	}

	enum := make([]any, 0, len(productIDs))
	for _, id := range productIDs {
		g.offered[id] = true
		enum = append(enum, id)
	}
	g.ProductList = &Model{
		ID:    namespace + ".Product",
		Title: "Product",
		Properties: map[string]any{
			"product": map[string]any{"type": "string", "enum": enum},
		},
	}
	g.Request = &Model{
		ID:         namespace + ".ProductRequest",
		Title:      "Product Request",
		SubClassOf: domain.TypeForm,
		Required:   []string{"product"},
		Properties: map[string]any{
			"product": map[string]any{"type": "string", "enum": enum},
		},
	}
	if err := registry.Add(g.ProductList); err != nil {
		return nil, err
	}
	if err := registry.Add(g.Request); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		product, _ := registry.Get(id)
		cert := &Model{
			ID:         namespace + ".My" + shortName(id),
			Title:      "My " + titleOf(product),
			SubClassOf: domain.TypeMyProduct,
			Properties: map[string]any{
				"myProductId": map[string]any{"type": "string"},
			},
		}
		if err := registry.Add(cert); err != nil {
			return nil, err
		}
		g.certificates[id] = cert
	}
	return g, nil
}

// RequestType returns the generated product-request form type.
func (g *Generated) RequestType() string { return g.Request.ID }

// Offered reports whether a product is part of the catalog.
func (g *Generated) Offered(productID string) bool { return g.offered[productID] }

// CertificateFor returns the certificate model for a product.
func (g *Generated) CertificateFor(productID string) (*Model, bool) {
	m, ok := g.certificates[productID]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func shortName(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}

func titleOf(m *Model) string {
	if m == nil {
		return ""
	}
	if m.Title != "" {
		return m.Title
	}
	return shortName(m.ID)
}
