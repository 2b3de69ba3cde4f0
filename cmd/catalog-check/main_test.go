package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// writeTestCatalog creates a catalog file in the working directory so the
// relative-path validation in cli accepts it.
func writeTestCatalog(t *testing.T, content string) string {
	t.Helper()
	tmp, err := os.CreateTemp(".", "catalog-*.json")
	if err != nil {
		t.Fatalf("create temp catalog: %v", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		t.Fatalf("write %s: %v", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close %s: %v", tmp.Name(), err)
	}
	t.Cleanup(func() {
		_ = os.Remove(tmp.Name())
	})
	return tmp.Name()
}

const validCatalog = `{
	"namespace": "acme",
	"products": ["acme.Visa"],
	"models": [
		{"id": "acme.Visa", "title": "Visa Card", "sub_class_of": "tradle.FinancialProduct", "forms": ["acme.Name"]},
		{"id": "acme.Name", "title": "Name Form", "sub_class_of": "tradle.Form", "required": ["name"]}
	]
}`

func TestCLISuccess(t *testing.T) {
	path := writeTestCatalog(t, validCatalog)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-catalog", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "Catalog validation passed: 1 products") {
		t.Fatalf("stdout = %q", out)
	}
	if !strings.Contains(out, "acme.ProductRequest") {
		t.Fatalf("stdout missing request form: %q", out)
	}
}

func TestCLIValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing namespace",
			content: `{"products": ["acme.Visa"], "models": [{"id": "acme.Visa", "sub_class_of": "tradle.FinancialProduct"}]}`,
			wantErr: "namespace required",
		},
		{
			name:    "reserved namespace",
			content: `{"namespace": "tradle", "products": ["acme.Visa"], "models": [{"id": "acme.Visa", "sub_class_of": "tradle.FinancialProduct"}]}`,
			wantErr: "reserved",
		},
		{
			name:    "no products",
			content: `{"namespace": "acme"}`,
			wantErr: "at least one product",
		},
		{
			name:    "unknown product",
			content: `{"namespace": "acme", "products": ["acme.Ghost"]}`,
			wantErr: "unknown product model",
		},
		{
			name:    "not a product",
			content: `{"namespace": "acme", "products": ["acme.Name"], "models": [{"id": "acme.Name", "sub_class_of": "tradle.Form"}]}`,
			wantErr: "not a product model",
		},
		{
			name:    "duplicate model",
			content: `{"namespace": "acme", "products": ["acme.Visa"], "models": [{"id": "tradle.Form"}]}`,
			wantErr: "already registered",
		},
		{
			name:    "malformed json",
			content: `{`,
			wantErr: "parse catalog",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTestCatalog(t, tc.content)
			var stdout, stderr bytes.Buffer
			code := cli([]string{"-catalog", path}, &stdout, &stderr)
			if code != 1 {
				t.Fatalf("exit = %d, stdout: %s", code, stdout.String())
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr = %q, want substring %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestCLIMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-catalog", "does-not-exist.json"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "read catalog") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-unknown"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit = %d", code)
	}
}

func TestValidatePath(t *testing.T) {
	if _, err := validatePath(""); err == nil {
		t.Fatal("empty path accepted")
	}
	if _, err := validatePath("/etc/passwd"); err == nil {
		t.Fatal("absolute path accepted")
	}
	if _, err := validatePath("../outside.json"); err == nil {
		t.Fatal("traversal accepted")
	}
	clean, err := validatePath("./catalog.json")
	if err != nil || clean != "catalog.json" {
		t.Fatalf("clean=%q err=%v", clean, err)
	}
}
