package domain

import (
	"fmt"
	"strings"
)

// FieldKind is the coercion type of an importable field.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindInteger  FieldKind = "integer"
	FieldKindFloat    FieldKind = "float"
	FieldKindDecimal  FieldKind = "decimal"
	FieldKindBoolean  FieldKind = "boolean"
	FieldKindDate     FieldKind = "date"
	FieldKindDatetime FieldKind = "datetime"
)

var knownFieldKinds = map[FieldKind]struct{}{
	FieldKindText:     {},
	FieldKindInteger:  {},
	FieldKindFloat:    {},
	FieldKindDecimal:  {},
	FieldKindBoolean:  {},
	FieldKindDate:     {},
	FieldKindDatetime: {},
}

// Valid reports whether the kind is one of the supported coercion types.
func (k FieldKind) Valid() bool {
	_, ok := knownFieldKinds[k]
	return ok
}

// FieldDef describes one importable column. Name is what the ingestion action
// receives; Label is what appears in file headers and error messages.
type FieldDef struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Kind     FieldKind `json:"type"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f FieldDef) DisplayLabel() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.Name
}

// FieldSchema is the ordered, immutable set of fields of one importer.
type FieldSchema struct {
	fields         []FieldDef
	byName         map[string]int
	strictBooleans bool
}

// SchemaOption customizes a FieldSchema at construction.
type SchemaOption func(*FieldSchema)

// WithStrictBooleans makes boolean coercion reject tokens that are neither
// affirmative nor negative instead of reading them as false.
func WithStrictBooleans() SchemaOption {
	return func(s *FieldSchema) {
		s.strictBooleans = true
	}
}

// NewFieldSchema validates the definitions and freezes them in order.
func NewFieldSchema(defs []FieldDef, opts ...SchemaOption) (FieldSchema, error) {
	schema := FieldSchema{
		fields: make([]FieldDef, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for idx, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return FieldSchema{}, fmt.Errorf("field %d has no name", idx+1)
		}
		if _, exists := schema.byName[name]; exists {
			return FieldSchema{}, fmt.Errorf("duplicate field name %q", name)
		}
		if def.Kind == "" {
			def.Kind = FieldKindText
		}
		if !def.Kind.Valid() {
			return FieldSchema{}, fmt.Errorf("field %s has unsupported type %q", name, def.Kind)
		}
		def.Name = name
		def.Label = strings.TrimSpace(def.Label)
		if def.Label == "" {
			def.Label = name
		}
		schema.byName[name] = len(schema.fields)
		schema.fields = append(schema.fields, def)
	}
	for _, opt := range opts {
		opt(&schema)
	}
	return schema, nil
}

// MustFieldSchema is NewFieldSchema for package-level importer definitions.
func MustFieldSchema(defs []FieldDef, opts ...SchemaOption) FieldSchema {
	schema, err := NewFieldSchema(defs, opts...)
	if err != nil {
		panic(err)
	}
	return schema
}

// Fields returns a copy of the field definitions in declaration order.
func (s FieldSchema) Fields() []FieldDef {
	clone := make([]FieldDef, len(s.fields))
	copy(clone, s.fields)
	return clone
}

// Len returns the number of fields.
func (s FieldSchema) Len() int {
	return len(s.fields)
}

// Lookup returns the definition registered under name.
func (s FieldSchema) Lookup(name string) (FieldDef, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return FieldDef{}, false
	}
	return s.fields[idx], true
}

// StrictBooleans reports whether unmatched boolean tokens are rejected.
func (s FieldSchema) StrictBooleans() bool {
	return s.strictBooleans
}
