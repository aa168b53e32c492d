package feeders

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DotEnvFeeder reads KEY=VALUE lines from a .env file and populates
// env-tagged struct fields the way AffixedEnvFeeder does. Variables already
// set in the process environment take precedence over the file.
type DotEnvFeeder struct {
	Path   string
	Prefix string
	Suffix string
}

// NewDotEnvFeeder creates a DotEnvFeeder for filePath.
func NewDotEnvFeeder(filePath, prefix, suffix string) *DotEnvFeeder {
	return &DotEnvFeeder{Path: filePath, Prefix: prefix, Suffix: suffix}
}

// Feed parses the file and fills structure.
func (d *DotEnvFeeder) Feed(structure any) error {
	values, err := ParseDotEnv(d.Path)
	if err != nil {
		return err
	}
	f := NewAffixedEnvFeeder(d.Prefix, d.Suffix)
	f.lookup = func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}
	return f.Feed(structure)
}

// ParseDotEnv reads a .env file. Blank lines and # comments are skipped, an
// optional "export " prefix is accepted and matching quotes are removed.
func ParseDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dotenv feed error: %w", err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("dotenv feed error: %w: %s:%d", ErrParse, path, lineNum)
		}
		values[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dotenv feed error: %w", err)
	}
	return values, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
