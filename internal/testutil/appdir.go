package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// AppDir is a temporary app base path populated by tests.
type AppDir struct {
	t    *testing.T
	Path string
}

// NewAppDir creates an empty app directory removed when the test ends.
func NewAppDir(t *testing.T) *AppDir {
	t.Helper()
	return &AppDir{t: t, Path: t.TempDir()}
}

// WriteFile writes content to rel under the app directory, creating parents.
func (a *AppDir) WriteFile(rel, content string) string {
	a.t.Helper()
	path := filepath.Join(a.Path, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		a.t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		a.t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

// WriteJSON marshals v into rel.
func (a *AppDir) WriteJSON(rel string, v any) string {
	a.t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		a.t.Fatalf("marshal %s: %v", rel, err)
	}
	return a.WriteFile(rel, string(data))
}

// Settings writes the app settings file with the given module overrides.
func (a *AppDir) Settings(modules map[string]any) string {
	a.t.Helper()
	return a.WriteJSON("app.json", map[string]any{"modules": modules})
}

// Resource writes resources/<name>/config.json declaring typeID plus extra fields.
func (a *AppDir) Resource(name, typeID string, extra map[string]any) string {
	a.t.Helper()
	config := map[string]any{"type": typeID}
	for k, v := range extra {
		config[k] = v
	}
	return a.WriteJSON(filepath.Join("resources", name, "config.json"), config)
}

// Mkdir creates rel as a directory.
func (a *AppDir) Mkdir(rel string) string {
	a.t.Helper()
	path := filepath.Join(a.Path, rel)
	if err := os.MkdirAll(path, 0o755); err != nil {
		a.t.Fatalf("mkdir %s: %v", rel, err)
	}
	return path
}
