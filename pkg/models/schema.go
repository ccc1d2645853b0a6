package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SchemaField is one column of the destination schema. RECORD fields carry
// their children in Fields.
type SchemaField struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Mode   string        `json:"mode,omitempty"`
	Fields []SchemaField `json:"fields,omitempty"`
}

// Repeated reports whether the field is an array.
func (f SchemaField) Repeated() bool {
	return strings.EqualFold(f.Mode, "REPEATED")
}

// DestinationSchema describes the table every generated script must produce.
type DestinationSchema struct {
	Fields []SchemaField `json:"fields"`
}

// FieldNames returns top-level field names in declaration order.
func (s *DestinationSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field looks up a top-level field by name, case-insensitively.
func (s *DestinationSchema) Field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return SchemaField{}, false
}

// LoadSchema reads a destination schema from a JSON file.
func LoadSchema(path string) (*DestinationSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var schema DestinationSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("schema file %s defines no fields", path)
	}
	return &schema, nil
}

var (
	defaultSchemaOnce sync.Once
	defaultSchema     *DestinationSchema
	defaultSchemaErr  error
)

// DefaultSchema loads schema.json once per process and caches the result,
// including a load failure.
func DefaultSchema() (*DestinationSchema, error) {
	defaultSchemaOnce.Do(func() {
		defaultSchema, defaultSchemaErr = LoadSchema("schema.json")
	})
	return defaultSchema, defaultSchemaErr
}
