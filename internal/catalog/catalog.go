// Package catalog loads the research domains the pipeline curates.
//
// A catalog is a YAML document listing domains, the search queries issued for
// each, and the criteria the quality assessor scores against. The built-in
// catalog is embedded; deployments may point catalog.path at their own file.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

//go:embed domains.yaml
var defaultCatalog []byte

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*$`)

// Criteria describe what makes a paper relevant to a domain.
type Criteria struct {
	Keywords    []string `yaml:"keywords"`
	StudyTypes  []string `yaml:"study_types"`
	Populations []string `yaml:"populations"`
}

// Domain is one research area with its query set.
type Domain struct {
	Name        string   `yaml:"name" validate:"required,slug"`
	Description string   `yaml:"description"`
	Queries     []string `yaml:"queries" validate:"required,min=1,dive,required"`
	Criteria    Criteria `yaml:"criteria"`
}

// Catalog is an ordered list of domains.
type Catalog struct {
	Domains []Domain `yaml:"domains" validate:"required,min=1,dive"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, falling back to the embedded catalog when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i := range c.Domains {
		c.Domains[i].Name = strings.TrimSpace(c.Domains[i].Name)
		for j, q := range c.Domains[i].Queries {
			c.Domains[i].Queries[j] = strings.TrimSpace(q)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and rejects duplicate domain names.
func (c *Catalog) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("failed to register slug validation: %w", err)
	}

	if err := v.Struct(c); err != nil {
		return domain.NewValidationError("catalog", err.Error())
	}

	seen := make(map[string]struct{}, len(c.Domains))
	for _, d := range c.Domains {
		if _, ok := seen[d.Name]; ok {
			return domain.NewValidationError("catalog", fmt.Sprintf("duplicate domain %q", d.Name))
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// Names returns the domain names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Domains))
	for i, d := range c.Domains {
		names[i] = d.Name
	}
	return names
}

// Get looks up a domain by name.
func (c *Catalog) Get(name string) (Domain, bool) {
	for _, d := range c.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return Domain{}, false
}

// Select returns the named domains in catalog order. An empty filter selects
// every domain; an unknown name is a validation error.
func (c *Catalog) Select(names []string) ([]Domain, error) {
	if len(names) == 0 {
		return append([]Domain(nil), c.Domains...), nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, ok := c.Get(n); !ok {
			return nil, domain.NewValidationError("domain", fmt.Sprintf("unknown domain %q", n))
		}
		wanted[n] = true
	}

	out := make([]Domain, 0, len(wanted))
	for _, d := range c.Domains {
		if wanted[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}
