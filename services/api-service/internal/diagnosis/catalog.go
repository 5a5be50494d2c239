package diagnosis

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed diseases.yaml
var diseasesYAML []byte

type Disease struct {
	Label      string `yaml:"label"`
	Name       string `yaml:"name"`
	Crop       string `yaml:"crop"`
	Treatment  string `yaml:"treatment"`
	Prevention string `yaml:"prevention"`
}

// Catalog maps model labels to agronomic guidance.
type Catalog struct {
	byLabel map[string]Disease
}

func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(diseasesYAML)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var doc struct {
		Diseases []Disease `yaml:"diseases"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse disease catalog: %w", err)
	}
	c := &Catalog{byLabel: make(map[string]Disease, len(doc.Diseases))}
	for _, d := range doc.Diseases {
		key := normalizeLabel(d.Label)
		if key == "" {
			return nil, fmt.Errorf("disease catalog entry without label")
		}
		if _, dup := c.byLabel[key]; dup {
			return nil, fmt.Errorf("duplicate disease label %q", d.Label)
		}
		c.byLabel[key] = d
	}
	return c, nil
}

// Lookup returns the entry for a model label. Unknown labels get generic
// guidance under the label itself.
func (c *Catalog) Lookup(label string) (Disease, bool) {
	if d, ok := c.byLabel[normalizeLabel(label)]; ok {
		return d, true
	}
	return Disease{
		Label:      label,
		Name:       label,
		Treatment:  "No catalog guidance for this condition. Book a consultation with an agronomist.",
		Prevention: "Isolate affected plants and keep a photo record of symptom progression.",
	}, false
}

func (c *Catalog) Len() int { return len(c.byLabel) }

// normalizeLabel folds "Tomato___Early blight" and "tomato_early_blight" to
// the same key.
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}
