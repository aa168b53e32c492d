package feeders

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file.
type TomlFeeder struct {
	Path   string
	logger debugLogger
}

// NewTomlFeeder creates a TomlFeeder for filePath.
func NewTomlFeeder(filePath string) *TomlFeeder {
	return &TomlFeeder{Path: filePath}
}

// SetVerboseDebug enables debug logging of feed operations.
func (t *TomlFeeder) SetVerboseDebug(logger debugLogger) {
	t.logger = logger
}

// Feed decodes the file into target. An empty file leaves target untouched.
func (t *TomlFeeder) Feed(target any) error {
	if t.logger != nil {
		t.logger.Debug("TomlFeeder: feeding", "filePath", t.Path)
	}
	data, err := readDocument(t.Path)
	if err != nil {
		return fmt.Errorf("toml feed error: %w", err)
	}
	if data == nil {
		return nil
	}
	if err := toml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("toml feed error: %w: %s: %w", ErrParse, t.Path, err)
	}
	return nil
}

// FeedKey decodes the top-level key into target. A missing key is not an error.
func (t *TomlFeeder) FeedKey(key string, target any) error {
	return feedKey(t, key, target, tomlMarshal, toml.Unmarshal, "TOML")
}

func tomlMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
