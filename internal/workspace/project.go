package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureProjectConfig makes sure a project directory carries a minimal
// opencode.json so the engine picks up project scoping. An existing
// file is never rewritten.
func EnsureProjectConfig(projectDir string) error {
	path := filepath.Join(projectDir, "opencode.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	body := []byte("{\n  \"$schema\": \"https://opencode.ai/config.json\"\n}\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
