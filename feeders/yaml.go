package feeders

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file.
type YamlFeeder struct {
	Path   string
	logger debugLogger
}

// NewYamlFeeder creates a YamlFeeder for filePath.
func NewYamlFeeder(filePath string) *YamlFeeder {
	return &YamlFeeder{Path: filePath}
}

// SetVerboseDebug enables debug logging of feed operations.
func (y *YamlFeeder) SetVerboseDebug(logger debugLogger) {
	y.logger = logger
}

// Feed decodes the file into target. An empty file leaves target untouched.
func (y *YamlFeeder) Feed(target any) error {
	if y.logger != nil {
		y.logger.Debug("YamlFeeder: feeding", "filePath", y.Path)
	}
	data, err := readDocument(y.Path)
	if err != nil {
		return fmt.Errorf("yaml feed error: %w", err)
	}
	if data == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("yaml feed error: %w: %s: %w", ErrParse, y.Path, err)
	}
	return nil
}

// FeedKey decodes the top-level key into target. A missing key is not an error.
func (y *YamlFeeder) FeedKey(key string, target any) error {
	return feedKey(y, key, target, yaml.Marshal, yaml.Unmarshal, "YAML")
}
