package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestPluginsDoNotImportInternals enforces that plugin implementation
// packages do not import the engine internals directly. Plugins must depend
// only on the stable surfaces in pkg/pluginapi, pkg/hook, and pkg/domain.
func TestPluginsDoNotImportInternals(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot get working dir: %v", err)
	}

	root := wd // this file lives in the plugins directory

	forbiddenPrefix := "applycore/internal/"

	var violations []string

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil { // propagate filesystem errors
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		// Ignore this test file itself just in case
		if path == filepath.Join(root, "architecture_test.go") {
			return nil
		}

		// #nosec G304 -- path comes from controlled WalkDir over the local repository tree,
		// restricted to .go source files under plugins; no external input.
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		lines := strings.Split(string(data), "\n")
		inImport := false
		for _, raw := range lines {
			line := strings.TrimSpace(raw)
			if !inImport {
				if strings.HasPrefix(line, "import (") {
					inImport = true
					continue
				}
				if strings.HasPrefix(line, "import ") { // single import form
					if q := extractQuoted(line); strings.HasPrefix(q, forbiddenPrefix) {
						violations = append(violations, path)
					}
				}
				continue
			}
			// inside import block
			if line == ")" {
				inImport = false
				continue
			}
			if q := extractQuoted(line); strings.HasPrefix(q, forbiddenPrefix) {
				violations = append(violations, path)
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk plugins dir: %v", walkErr)
	}

	for _, v := range violations {
		t.Errorf("plugin file imports forbidden %s...: %s", forbiddenPrefix, v)
	}
}

// extractQuoted pulls the first double-quoted segment out of an import line.
func extractQuoted(line string) string {
	start := strings.Index(line, "\"")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}
