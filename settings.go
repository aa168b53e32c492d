package modserver

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/GoCodeAlone/modserver/feeders"
)

// DefaultSettingsFile is the app settings file read from the base path.
const DefaultSettingsFile = "app.json"

// Settings is the decoded app settings file.
type Settings struct {
	// Modules maps module ids to their configuration override.
	Modules map[string]any `json:"modules" yaml:"modules" toml:"modules"`

	// Raw holds every top-level field of the file.
	Raw map[string]any `json:"-" yaml:"-" toml:"-"`
}

// ModuleConfig returns the override for module id, or nil.
func (s *Settings) ModuleConfig(id string) any {
	if s == nil || s.Modules == nil {
		return nil
	}
	return s.Modules[id]
}

// ReadSettings reads the settings file at basePath/file. A missing or empty
// file yields empty settings. The format is selected by file extension.
func ReadSettings(basePath, file string) (*Settings, error) {
	if file == "" {
		file = DefaultSettingsFile
	}
	path := filepath.Join(basePath, file)

	feeder, err := feeders.ForFile(path)
	if err != nil {
		return nil, newLoadError("settings", fmt.Errorf("%w %s: %w", ErrSettingsParse, file, err))
	}

	var raw map[string]any
	if err := feeder.Feed(&raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Settings{Modules: map[string]any{}, Raw: map[string]any{}}, nil
		}
		return nil, newLoadError("settings", fmt.Errorf("%w %s: %w", ErrSettingsParse, file, err))
	}

	settings := &Settings{Modules: map[string]any{}, Raw: raw}
	if raw == nil {
		settings.Raw = map[string]any{}
		return settings, nil
	}
	if mods, ok := raw["modules"]; ok && mods != nil {
		m, ok := mods.(map[string]any)
		if !ok {
			return nil, newLoadError("settings", fmt.Errorf("%w %s: \"modules\" must be a mapping, got %T", ErrSettingsParse, file, mods))
		}
		settings.Modules = m
	}
	return settings, nil
}
