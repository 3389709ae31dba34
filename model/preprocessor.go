package model

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"vfm-car-finder/models"
)

// Vector is the encoded feature row in the column order the model was trained on.
type Vector []float64

// Features is the raw, named input of the preprocessing transform.
type Features struct {
	Numeric     map[string]float64
	Categorical map[string]string
}

// Column kinds.
const (
	KindNumeric     = "numeric"
	KindCategorical = "categorical"
)

// ColumnSpec describes one input column of the trained model.
//
// Numeric columns may define Impute (used when the value is missing or not
// finite) and Mean/Scale for standardization. Categorical columns are
// ordinal-encoded by their position in Levels; Missing names the level used
// for an absent value and UnknownValue is the explicit code for a level the
// model never saw. Without these fallbacks the listing is rejected.
type ColumnSpec struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	Impute       *float64 `yaml:"impute,omitempty"`
	Mean         float64  `yaml:"mean,omitempty"`
	Scale        float64  `yaml:"scale,omitempty"`
	Levels       []string `yaml:"levels,omitempty"`
	Missing      *string  `yaml:"missing,omitempty"`
	UnknownValue *float64 `yaml:"unknown_value,omitempty"`

	levelIndex map[string]int
}

// Preprocessor turns named Features into a model Vector.
type Preprocessor interface {
	Version() string
	Columns() []string
	Transform(f Features) (Vector, error)
}

// TablePreprocessor is a Preprocessor described by a list of ColumnSpecs.
type TablePreprocessor struct {
	ArtifactVersion string       `yaml:"version"`
	Specs           []ColumnSpec `yaml:"columns"`
}

// LoadPreprocessor reads a YAML preprocessor artifact.
func LoadPreprocessor(path string) (*TablePreprocessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read preprocessor: %v", models.ErrModelLoad, err)
	}
	return ParsePreprocessor(data)
}

// ParsePreprocessor decodes and validates a YAML preprocessor artifact.
func ParsePreprocessor(data []byte) (*TablePreprocessor, error) {
	var p TablePreprocessor
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: parse preprocessor yaml: %v", models.ErrModelLoad, err)
	}
	if err := p.init(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelLoad, err)
	}
	return &p, nil
}

func (p *TablePreprocessor) init() error {
	if len(p.Specs) == 0 {
		return fmt.Errorf("preprocessor has no columns")
	}
	seen := make(map[string]struct{}, len(p.Specs))
	for i := range p.Specs {
		c := &p.Specs[i]
		if c.Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}

		switch c.Kind {
		case KindNumeric:
			if c.Scale < 0 {
				return fmt.Errorf("column %q has negative scale", c.Name)
			}
		case KindCategorical:
			if len(c.Levels) == 0 {
				return fmt.Errorf("categorical column %q has no levels", c.Name)
			}
			c.levelIndex = make(map[string]int, len(c.Levels))
			for j, l := range c.Levels {
				c.levelIndex[l] = j
			}
			if c.Missing != nil {
				if _, ok := c.levelIndex[*c.Missing]; !ok {
					return fmt.Errorf("column %q: missing level %q is not a known level", c.Name, *c.Missing)
				}
			}
		default:
			return fmt.Errorf("column %q has unknown kind %q", c.Name, c.Kind)
		}
	}
	return nil
}

func (p *TablePreprocessor) Version() string { return p.ArtifactVersion }

func (p *TablePreprocessor) Columns() []string {
	out := make([]string, len(p.Specs))
	for i, c := range p.Specs {
		out[i] = c.Name
	}
	return out
}

// Transform encodes f. It fails with a *models.MismatchError on the first
// column that cannot be filled.
func (p *TablePreprocessor) Transform(f Features) (Vector, error) {
	v := make(Vector, len(p.Specs))
	for i := range p.Specs {
		c := &p.Specs[i]
		var err error
		if c.Kind == KindNumeric {
			v[i], err = c.encodeNumeric(f.Numeric)
		} else {
			v[i], err = c.encodeCategorical(f.Categorical)
		}
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (c *ColumnSpec) encodeNumeric(values map[string]float64) (float64, error) {
	x, ok := values[c.Name]
	if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
		if c.Impute == nil {
			return 0, &models.MismatchError{Column: c.Name, Reason: "missing numeric value"}
		}
		x = *c.Impute
	}
	if c.Scale > 0 {
		x = (x - c.Mean) / c.Scale
	}
	return x, nil
}

func (c *ColumnSpec) encodeCategorical(values map[string]string) (float64, error) {
	level := strings.TrimSpace(values[c.Name])
	if level == "" {
		if c.Missing == nil {
			return 0, &models.MismatchError{Column: c.Name, Reason: "missing categorical value"}
		}
		level = *c.Missing
	}
	if idx, ok := c.levelIndex[level]; ok {
		return float64(idx), nil
	}
	if c.UnknownValue != nil {
		return *c.UnknownValue, nil
	}
	return 0, &models.MismatchError{Column: c.Name, Reason: fmt.Sprintf("unexpected level %q", level)}
}
