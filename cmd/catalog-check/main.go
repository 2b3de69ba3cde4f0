// Command catalog-check validates a product catalog configuration before
// deployment: the namespace, the offered product ids, and any custom models
// the catalog declares. It surfaces the configuration errors the engine
// would raise at construction time.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"applycore/pkg/models"
)

// Catalog is the deployable product configuration.
type Catalog struct {
	Namespace string          `json:"namespace"`
	Products  []string        `json:"products"`
	Models    []*models.Model `json:"models,omitempty"`
}

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalog-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var catalogPath string
	fs.StringVar(&catalogPath, "catalog", "catalog.json", "path to catalog json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	catalog, generated, err := run(catalogPath)
	if err != nil {
		fmt.Fprintf(stderr, "Catalog validation failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Catalog validation passed: %d products, request form %s.\n",
		len(catalog.Products), generated.RequestType())
	return 0
}

// validatePath ensures the catalog file path stays within the working tree.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

// run parses the catalog and replays the model generation the engine
// performs at construction time.
func run(catalogPath string) (*Catalog, *models.Generated, error) {
	safePath, err := validatePath(catalogPath)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}
	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}

	registry := models.Base()
	for i, m := range catalog.Models {
		if err := registry.Add(m); err != nil {
			return nil, nil, fmt.Errorf("models[%d]: %w", i, err)
		}
	}
	generated, err := models.Generate(catalog.Namespace, registry, catalog.Products)
	if err != nil {
		return nil, nil, err
	}
	return &catalog, generated, nil
}
