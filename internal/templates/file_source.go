package templates

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"stylegen/internal/domain"
)

// Catalog is the YAML layout of a template file:
//
//	templates:
//	  - id: T1
//	    prompt_template: "..."
//	    provider: azure
type Catalog struct {
	Templates []domain.Template `yaml:"templates"`
}

// FileSource serves templates parsed from a YAML catalog at startup.
type FileSource struct {
	byID map[string]domain.Template
}

// LoadCatalog parses and validates a catalog.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return Catalog{}, fmt.Errorf("templates: decode catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(cat.Templates))
	for i := range cat.Templates {
		if err := cat.Templates[i].Normalize(); err != nil {
			return Catalog{}, err
		}
		id := cat.Templates[i].ID
		if _, dup := seen[id]; dup {
			return Catalog{}, fmt.Errorf("templates: duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	return cat, nil
}

// LoadCatalogFile opens and parses path.
func LoadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("templates: open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// NewFileSource indexes a catalog by id.
func NewFileSource(cat Catalog) *FileSource {
	byID := make(map[string]domain.Template, len(cat.Templates))
	for _, tpl := range cat.Templates {
		byID[tpl.ID] = tpl
	}
	return &FileSource{byID: byID}
}

func (s *FileSource) FindTemplate(ctx context.Context, id string) (domain.Template, error) {
	tpl, ok := s.byID[id]
	if !ok {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

var _ domain.TemplateSource = (*FileSource)(nil)
