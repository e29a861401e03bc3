package ingestion

import (
	"errors"
	"strings"

	"github.com/rpattn/bulkimport/internal/domain"
)

// ErrImporterNotFound is returned when a job names an importer that is not registered.
var ErrImporterNotFound = errors.New("importer not found")

// Importer bundles everything needed to run one kind of import.
type Importer struct {
	Name        string
	Label       string
	Description string
	Schema      domain.FieldSchema
	Action      ActionFunc
	// CanRerun allows finished jobs of this importer to be run again from
	// the stored source.
	CanRerun bool
	// KeyField names the field used to find existing records for updates.
	// NewKeyedImporter sets it together with an Action that honours it.
	KeyField string
	// HeaderRow is the spreadsheet row holding the headers; zero means 1.
	HeaderRow int
}

// Validate checks the importer can be registered.
func (i Importer) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("importer name is required")
	}
	if i.Schema.Len() == 0 {
		return errors.New("importer " + i.Name + " has no fields")
	}
	if i.Action == nil {
		return errors.New("importer " + i.Name + " has no action")
	}
	if i.KeyField != "" {
		if _, ok := i.Schema.Lookup(i.KeyField); !ok {
			return errors.New("importer " + i.Name + " key field " + i.KeyField + " is not in its schema")
		}
	}
	if i.HeaderRow < 0 {
		return errors.New("importer " + i.Name + " has a negative header row")
	}
	return nil
}

// DisplayLabel falls back to the name when no label is set.
func (i Importer) DisplayLabel() string {
	if strings.TrimSpace(i.Label) == "" {
		return i.Name
	}
	return i.Label
}

// ImporterLookup resolves importers by name.
type ImporterLookup interface {
	Get(name string) (Importer, bool)
}
