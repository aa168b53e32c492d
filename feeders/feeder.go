// Package feeders reads declarative files and environment variables into
// configuration targets. File feeders decode a whole document into a map or
// struct and can extract a single top-level key with FeedKey.
package feeders

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Feeder populates a target from a source.
type Feeder interface {
	Feed(target any) error
}

// KeyFeeder is a Feeder that can also extract a single top-level key.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

type debugLogger interface {
	Debug(msg string, args ...any)
}

// ForFile returns the file feeder matching the extension of path.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONFeeder(path), nil
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// readDocument reads path. An empty or whitespace-only file yields nil data.
func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// feedKey extracts key from the whole document and re-decodes it into target.
func feedKey(
	f Feeder,
	key string,
	target any,
	marshal func(any) ([]byte, error),
	unmarshal func([]byte, any) error,
	format string,
) error {
	var all map[string]any
	if err := f.Feed(&all); err != nil {
		return err
	}

	value, ok := all[key]
	if !ok {
		return nil
	}

	raw, err := marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s key %q: %w", format, key, err)
	}
	if err := unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s key %q: %w", format, key, err)
	}
	return nil
}
