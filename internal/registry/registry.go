// Package registry holds the importers known to a process. Importers are
// registered explicitly at startup; there is no discovery.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/bulkimport/internal/ingestion"
)

// Registry maps importer names to importers. The zero value is not usable;
// call New.
type Registry struct {
	mu        sync.RWMutex
	importers map[string]ingestion.Importer
}

var _ ingestion.ImporterCatalog = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{importers: make(map[string]ingestion.Importer)}
}

// Register adds an importer. Names must be unique.
func (r *Registry) Register(importer ingestion.Importer) error {
	if err := importer.Validate(); err != nil {
		return fmt.Errorf("register importer: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.importers[importer.Name]; exists {
		return fmt.Errorf("importer already registered: %s", importer.Name)
	}
	r.importers[importer.Name] = importer
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(importers ...ingestion.Importer) *Registry {
	for _, importer := range importers {
		if err := r.Register(importer); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns the importer registered under name.
func (r *Registry) Get(name string) (ingestion.Importer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	importer, ok := r.importers[name]
	return importer, ok
}

// All returns every importer sorted by label, then name.
func (r *Registry) All() []ingestion.Importer {
	r.mu.RLock()
	result := make([]ingestion.Importer, 0, len(r.importers))
	for _, importer := range r.importers {
		result = append(result, importer)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		li, lj := result[i].DisplayLabel(), result[j].DisplayLabel()
		if li != lj {
			return li < lj
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Choice is a name/label pair for pickers.
type Choice struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Choices lists importers in All order.
func (r *Registry) Choices() []Choice {
	all := r.All()
	choices := make([]Choice, len(all))
	for i, importer := range all {
		choices[i] = Choice{Name: importer.Name, Label: importer.DisplayLabel()}
	}
	return choices
}

// Len reports how many importers are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.importers)
}
