package questionnaire

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/bloom/internal/models"
)

//go:embed catalog/domains.toml
var defaultCatalog []byte

// Catalog is the ordered, read-only domain outline the questionnaire walks
type Catalog struct {
	Domains []models.Domain `toml:"domains" validate:"required,min=1,dive"`
}

// DefaultCatalog parses the embedded outline
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog returns the catalog at path, or the embedded one when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a TOML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and that domain ids, and question ids within a
// domain, are unique
func (c *Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	domains := make(map[string]bool, len(c.Domains))
	for _, d := range c.Domains {
		if domains[d.ID] {
			return fmt.Errorf("invalid catalog: duplicate domain id %q", d.ID)
		}
		domains[d.ID] = true

		questions := make(map[string]bool, len(d.Questions))
		for _, q := range d.Questions {
			if questions[q.ID] {
				return fmt.Errorf("invalid catalog: duplicate question id %q in domain %q", q.ID, d.ID)
			}
			questions[q.ID] = true
		}
	}
	return nil
}

// TotalQuestions counts questions across all domains
func (c *Catalog) TotalQuestions() int {
	total := 0
	for _, d := range c.Domains {
		total += len(d.Questions)
	}
	return total
}

// Domain returns the domain at i, or nil when out of range
func (c *Catalog) Domain(i int) *models.Domain {
	if i < 0 || i >= len(c.Domains) {
		return nil
	}
	return &c.Domains[i]
}

// Question returns the question at (i, j), or nil when either index is out of range
func (c *Catalog) Question(i, j int) *models.Question {
	d := c.Domain(i)
	if d == nil || j < 0 || j >= len(d.Questions) {
		return nil
	}
	return &d.Questions[j]
}
