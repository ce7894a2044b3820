package analysis

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/okian/kaushal/internal/domain/model"
)

// maxResolveDistance is the largest edit distance accepted by Resolve.
const maxResolveDistance = 3

//go:embed catalog.yaml
var builtinCatalog []byte

type catalogFile struct {
	TestTypes []catalogEntry `yaml:"test_types"`
}

type catalogEntry struct {
	Slug                 string `yaml:"slug"`
	Name                 string `yaml:"name"`
	Category             string `yaml:"category"`
	Description          string `yaml:"description"`
	Instructions         string `yaml:"instructions"`
	PromptHint           string `yaml:"prompt_hint"`
	EstimatedDurationMin int    `yaml:"estimated_duration_min"`
	Difficulty           string `yaml:"difficulty"`
}

// Catalog resolves free-form test names to known test types.
type Catalog struct {
	types []model.TestType
}

// NewCatalog wraps a list of test types.
func NewCatalog(types []model.TestType) *Catalog {
	return &Catalog{types: types}
}

// BuiltinTestTypes returns the embedded default test types without ids.
func BuiltinTestTypes() ([]model.TestType, error) {
	return ParseCatalog(builtinCatalog)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(doc []byte) ([]model.TestType, error) {
	var f catalogFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	out := make([]model.TestType, 0, len(f.TestTypes))
	seen := make(map[string]struct{}, len(f.TestTypes))
	for i, e := range f.TestTypes {
		slug := NormalizeSlug(e.Slug)
		if slug == "" || strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: entry %d needs slug and name", ErrCatalog, i)
		}
		if _, dup := seen[slug]; dup {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrCatalog, slug)
		}
		seen[slug] = struct{}{}
		out = append(out, model.TestType{
			Slug:                 slug,
			Name:                 strings.TrimSpace(e.Name),
			Category:             e.Category,
			Description:          e.Description,
			Instructions:         e.Instructions,
			PromptHint:           e.PromptHint,
			EstimatedDurationMin: e.EstimatedDurationMin,
			Difficulty:           e.Difficulty,
			Active:               true,
		})
	}
	return out, nil
}

// NormalizeSlug lowercases s and joins words with underscores.
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// Resolve finds a test type by slug, then by name, then by the nearest slug
// or name within a small edit distance. Ties at the best distance are refused.
func (c *Catalog) Resolve(name string) (model.TestType, error) {
	key := NormalizeSlug(name)
	if key == "" {
		return model.TestType{}, fmt.Errorf("%w: empty name", ErrUnknownTestType)
	}

	for _, t := range c.types {
		if t.Slug == key {
			return t, nil
		}
	}
	for _, t := range c.types {
		if NormalizeSlug(t.Name) == key {
			return t, nil
		}
	}

	best, bestDist, tie := -1, maxResolveDistance+1, false
	for i, t := range c.types {
		d := distance(key, t.Slug)
		if dn := distance(key, NormalizeSlug(t.Name)); dn < d {
			d = dn
		}
		switch {
		case d < bestDist:
			best, bestDist, tie = i, d, false
		case d == bestDist:
			tie = true
		}
	}
	if best < 0 || tie {
		return model.TestType{}, fmt.Errorf("%w: %q", ErrUnknownTestType, name)
	}
	return c.types[best], nil
}

func distance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}
