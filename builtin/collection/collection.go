// Package collection provides the built-in "collection" resource type: a
// JSON document store kept in a table of the server database and served
// over HTTP.
//
// A collection resource directory holds a config file such as:
//
//	{
//	  "type": "collection",
//	  "properties": {
//	    "title": {"type": "string", "required": true},
//	    "done":  {"type": "boolean"}
//	  }
//	}
package collection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modserver"
)

// TypeID is the resource type id.
const TypeID = "collection"

var (
	ErrNoDatabase       = errors.New("collection requires a database")
	ErrInvalidProperty  = errors.New("invalid property definition")
	ErrValidation       = errors.New("document failed validation")
	ErrDocumentNotFound = errors.New("document not found")
)

// Type is the collection resource type. Register it with a Source under
// TypeID.
var Type = modserver.NewResourceType(TypeID, New)

// Property describes one declared document field.
type Property struct {
	Name     string
	Type     string
	Required bool
}

// Document is one stored record.
type Document map[string]any

// Collection is a live collection resource.
type Collection struct {
	*modserver.BaseResource
	table      string
	properties []Property
	logger     modserver.Logger
	router     chi.Router
}

var tableNameUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// New instantiates a collection from its resource config.
func New(name string, opts modserver.ResourceOptions) (modserver.Resource, error) {
	props, err := parseProperties(opts.Config["properties"])
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	logger := modserver.NopLogger()
	if opts.Server != nil {
		logger = opts.Server.Logger()
	}
	c := &Collection{
		BaseResource: modserver.NewBaseResource(name, TypeID, opts),
		table:        "collection_" + tableNameUnsafe.ReplaceAllString(name, "_"),
		properties:   props,
		logger:       logger,
	}
	c.router = c.routes()
	return c, nil
}

func parseProperties(raw any) ([]Property, error) {
	if raw == nil {
		return nil, nil
	}
	defs, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: properties must be a mapping, got %T", ErrInvalidProperty, raw)
	}

	props := make([]Property, 0, len(defs))
	for name, def := range defs {
		p := Property{Name: name}
		switch d := def.(type) {
		case string:
			p.Type = d
		case map[string]any:
			p.Type, _ = d["type"].(string)
			p.Required, _ = d["required"].(bool)
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, name)
		}
		switch p.Type {
		case "string", "number", "boolean", "object", "array":
		default:
			return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidProperty, name, p.Type)
		}
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props, nil
}

// Properties returns the declared fields in name order.
func (c *Collection) Properties() []Property { return c.properties }

// Table returns the backing table name.
func (c *Collection) Table() string { return c.table }

// Load creates the backing table.
func (c *Collection) Load(ctx context.Context) error {
	if c.DB() == nil {
		return ErrNoDatabase
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`, c.table)
	if _, err := c.DB().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", c.table, err)
	}
	c.logger.Debug("Collection ready", "resource", c.Name(), "table", c.table)
	return nil
}

// Validate checks doc against the declared properties. Undeclared fields are
// removed when properties are declared.
func (c *Collection) Validate(doc Document, partial bool) error {
	if len(c.properties) == 0 {
		return nil
	}

	var problems []string
	declared := make(map[string]bool, len(c.properties))
	for _, p := range c.properties {
		declared[p.Name] = true
		v, ok := doc[p.Name]
		if !ok || v == nil {
			if p.Required && !partial {
				problems = append(problems, p.Name+" is required")
			}
			continue
		}
		if !matchesType(v, p.Type) {
			problems = append(problems, fmt.Sprintf("%s must be a %s", p.Name, p.Type))
		}
	}
	for k := range doc {
		if k != "id" && !declared[k] {
			delete(doc, k)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}

func matchesType(v any, typ string) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	}
	return false
}

func now() time.Time { return time.Now().UTC() }

func scanErr(err error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return err
}
