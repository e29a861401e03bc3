// Package schema derives importer field schemas from storage descriptors so
// the column list of an entity is declared once.
package schema

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/bulkimport/internal/domain"

	"gopkg.in/yaml.v3"
)

// defaultExcluded columns are bookkeeping fields never offered for import.
var defaultExcluded = []string{"id", "created_at", "updated_at"}

// ColumnDescriptor describes one stored column of an entity.
type ColumnDescriptor struct {
	Name          string `yaml:"name"`
	Label         string `yaml:"label"`
	Type          string `yaml:"type"`
	Nullable      bool   `yaml:"nullable"`
	AutoIncrement bool   `yaml:"auto_increment"`
	// References names the target entity when the column is a foreign key.
	References string `yaml:"references"`
}

// EntityDescriptor describes a stored entity.
type EntityDescriptor struct {
	Name    string             `yaml:"name"`
	Label   string             `yaml:"label"`
	Columns []ColumnDescriptor `yaml:"columns"`
}

// Projection narrows the columns of a descriptor.
type Projection struct {
	Include []string
	Exclude []string
}

type descriptorFile struct {
	Entities []EntityDescriptor `yaml:"entities"`
}

// LoadDescriptors reads a YAML document with a top-level `entities` list.
func LoadDescriptors(r io.Reader) ([]EntityDescriptor, error) {
	var file descriptorFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("descriptor document is empty")
		}
		return nil, fmt.Errorf("decode descriptors: %w", err)
	}
	for idx, entity := range file.Entities {
		if strings.TrimSpace(entity.Name) == "" {
			return nil, fmt.Errorf("entity %d has no name", idx+1)
		}
	}
	return file.Entities, nil
}

// FindDescriptor returns the entity called name.
func FindDescriptor(descriptors []EntityDescriptor, name string) (EntityDescriptor, bool) {
	for _, desc := range descriptors {
		if desc.Name == name {
			return desc, true
		}
	}
	return EntityDescriptor{}, false
}

// FromDescriptor projects an entity descriptor into a FieldSchema.
func FromDescriptor(desc EntityDescriptor, projection Projection, opts ...domain.SchemaOption) (domain.FieldSchema, error) {
	excluded := make(map[string]struct{}, len(defaultExcluded)+len(projection.Exclude))
	for _, name := range defaultExcluded {
		excluded[name] = struct{}{}
	}
	for _, name := range projection.Exclude {
		excluded[name] = struct{}{}
	}
	var included map[string]struct{}
	if projection.Include != nil {
		included = make(map[string]struct{}, len(projection.Include))
		for _, name := range projection.Include {
			included[name] = struct{}{}
		}
	}

	defs := make([]domain.FieldDef, 0, len(desc.Columns))
	for _, column := range desc.Columns {
		if _, skip := excluded[column.Name]; skip {
			continue
		}
		if included != nil {
			if _, ok := included[column.Name]; !ok {
				continue
			}
		}
		if column.AutoIncrement || isSerial(column.Type) {
			continue
		}

		label := strings.TrimSpace(column.Label)
		if label == "" {
			label = column.Name
		}
		kind := KindForStorageType(column.Type)
		if strings.TrimSpace(column.References) != "" {
			kind = domain.FieldKindInteger
			label = label + " (ID)"
		}

		defs = append(defs, domain.FieldDef{
			Name:     column.Name,
			Label:    label,
			Required: !column.Nullable,
			Kind:     kind,
		})
	}

	schema, err := domain.NewFieldSchema(defs, opts...)
	if err != nil {
		return domain.FieldSchema{}, fmt.Errorf("entity %s: %w", desc.Name, err)
	}
	return schema, nil
}

// KindForStorageType maps a SQL-ish column type onto a field kind. Unknown
// types import as text.
func KindForStorageType(storageType string) domain.FieldKind {
	t := strings.ToLower(strings.TrimSpace(storageType))
	if idx := strings.IndexByte(t, '('); idx >= 0 {
		t = strings.TrimSpace(t[:idx])
	}
	switch {
	case t == "":
		return domain.FieldKindText
	case strings.HasPrefix(t, "timestamp"), t == "datetime":
		return domain.FieldKindDatetime
	case t == "date":
		return domain.FieldKindDate
	case strings.HasPrefix(t, "bool"):
		return domain.FieldKindBoolean
	case t == "numeric", t == "decimal", t == "money":
		return domain.FieldKindDecimal
	case t == "real", t == "float", t == "float4", t == "float8", strings.HasPrefix(t, "double"):
		return domain.FieldKindFloat
	case strings.HasPrefix(t, "int"), t == "bigint", t == "smallint", t == "tinyint":
		return domain.FieldKindInteger
	default:
		return domain.FieldKindText
	}
}

func isSerial(storageType string) bool {
	t := strings.ToLower(strings.TrimSpace(storageType))
	return t == "serial" || t == "bigserial" || t == "smallserial"
}
