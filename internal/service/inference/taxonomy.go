package inference

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Label is one persona or vertical with the signals that point to it
type Label struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Companies []string `yaml:"companies,omitempty"`
}

// Taxonomy is the configured set of personas and verticals
type Taxonomy struct {
	Personas  []Label `yaml:"personas"`
	Verticals []Label `yaml:"verticals"`
}

// DefaultTaxonomy returns the built-in taxonomy
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// LoadTaxonomy reads a taxonomy from path, or the built-in one when path is empty
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return ParseTaxonomy(data)
}

// ParseTaxonomy decodes and validates YAML taxonomy data. Keywords and
// company names are lowercased.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := validateLabels("persona", t.Personas); err != nil {
		return nil, err
	}
	if err := validateLabels("vertical", t.Verticals); err != nil {
		return nil, err
	}
	return &t, nil
}

func validateLabels(kind string, labels []Label) error {
	if len(labels) == 0 {
		return fmt.Errorf("taxonomy has no %ss", kind)
	}
	seen := make(map[string]bool, len(labels))
	for i := range labels {
		l := &labels[i]
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return fmt.Errorf("%s #%d has no name", kind, i+1)
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate %s %q", kind, l.Name)
		}
		seen[l.Name] = true
		l.Keywords = lowerAll(l.Keywords)
		l.Companies = lowerAll(l.Companies)
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PersonaNames lists persona labels in configured order
func (t *Taxonomy) PersonaNames() []string {
	return names(t.Personas)
}

// VerticalNames lists vertical labels in configured order
func (t *Taxonomy) VerticalNames() []string {
	return names(t.Verticals)
}

// ValidPersona reports whether p is a configured persona
func (t *Taxonomy) ValidPersona(p string) bool {
	return contains(t.Personas, p)
}

// ValidVertical reports whether v is a configured vertical
func (t *Taxonomy) ValidVertical(v string) bool {
	return contains(t.Verticals, v)
}

func names(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Name
	}
	return out
}

func contains(labels []Label, name string) bool {
	for _, l := range labels {
		if l.Name == name {
			return true
		}
	}
	return false
}
