package feature

import (
	"slices"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// SchemaVersion is bumped whenever the meaning of an engineered feature changes.
const SchemaVersion = 1

// Schema is the ordered set of features fed to the regressor. It is stored
// inside the model artifact so scoring can verify it instead of assuming it.
type Schema struct {
	Version     int      `json:"version" yaml:"version"`
	Categorical []string `json:"categorical" yaml:"categorical"`
	Numerical   []string `json:"numerical" yaml:"numerical"`
	Target      string   `json:"target" yaml:"target"`
}

// NewSchema returns a schema at the current version.
func NewSchema(categorical, numerical []string, target string) Schema {
	return Schema{
		Version:     SchemaVersion,
		Categorical: slices.Clone(categorical),
		Numerical:   slices.Clone(numerical),
		Target:      target,
	}
}

// Columns returns the feature columns: categorical then numerical.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.Categorical)+len(s.Numerical))
	out = append(out, s.Categorical...)
	return append(out, s.Numerical...)
}

// TableColumns returns the processed table layout: features then target.
func (s Schema) TableColumns() []string {
	return append(s.Columns(), s.Target)
}

// Equal reports whether both schemas describe the same encoding contract.
func (s Schema) Equal(o Schema) bool {
	return s.Version == o.Version &&
		s.Target == o.Target &&
		slices.Equal(s.Categorical, o.Categorical) &&
		slices.Equal(s.Numerical, o.Numerical)
}

// Validate checks the schema is usable.
func (s Schema) Validate() error {
	if s.Version != SchemaVersion {
		return errs.Config("unsupported schema version %d, expected %d", s.Version, SchemaVersion)
	}
	if len(s.Categorical)+len(s.Numerical) == 0 {
		return errs.Config("schema has no features")
	}
	if s.Target == "" {
		return errs.Config("schema has no target")
	}
	seen := make(map[string]bool)
	for _, c := range s.Columns() {
		if seen[c] || c == s.Target {
			return errs.Config("schema column %s is duplicated", c)
		}
		seen[c] = true
	}
	return nil
}
