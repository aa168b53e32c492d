package feeders

import (
	"encoding/json"
	"fmt"
)

// JSONFeeder reads a JSON file.
type JSONFeeder struct {
	Path   string
	logger debugLogger
}

// NewJSONFeeder creates a JSONFeeder for filePath.
func NewJSONFeeder(filePath string) *JSONFeeder {
	return &JSONFeeder{Path: filePath}
}

// SetVerboseDebug enables debug logging of feed operations.
func (j *JSONFeeder) SetVerboseDebug(logger debugLogger) {
	j.logger = logger
}

// Feed decodes the file into target. An empty file leaves target untouched.
func (j *JSONFeeder) Feed(target any) error {
	if j.logger != nil {
		j.logger.Debug("JSONFeeder: feeding", "filePath", j.Path)
	}
	data, err := readDocument(j.Path)
	if err != nil {
		return fmt.Errorf("json feed error: %w", err)
	}
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("json feed error: %w: %s: %w", ErrParse, j.Path, err)
	}
	return nil
}

// FeedKey decodes the top-level key into target. A missing key is not an error.
func (j *JSONFeeder) FeedKey(key string, target any) error {
	return feedKey(j, key, target, json.Marshal, json.Unmarshal, "JSON")
}
