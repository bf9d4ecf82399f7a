// Package config loads the pipeline configuration document once at process
// entry and exposes it as a typed Config that is passed to every component.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is the configuration document looked up under the project root.
	DefaultFileName = "configs/config.yaml"

	// DefaultLedgerDSN is the SQLite run history file, relative to the root.
	DefaultLedgerDSN = "runs.db"

	defaultTarget = "age"
)

// Config is the typed view of the configuration document.
type Config struct {
	Data     DataConfig    `yaml:"data" json:"data"`
	Features FeatureConfig `yaml:"features" json:"features"`
	Model    ModelConfig   `yaml:"model" json:"model"`
	Output   OutputConfig  `yaml:"output" json:"output"`
	Ledger   LedgerConfig  `yaml:"ledger" json:"ledger"`

	// Root is the project root relative paths resolve against.
	Root string `yaml:"-" json:"root,omitempty"`

	doc Document
}

type DataConfig struct {
	RawDataPath       string  `yaml:"raw_data_path" json:"raw_data_path"`
	ProcessedDataPath string  `yaml:"processed_data_path" json:"processed_data_path"`
	TestSize          float64 `yaml:"test_size" json:"test_size"`
	RandomState       int64   `yaml:"random_state" json:"random_state"`
}

type FeatureConfig struct {
	Categorical []string `yaml:"categorical" json:"categorical"`
	Numerical   []string `yaml:"numerical" json:"numerical"`
	Target      string   `yaml:"target" json:"target"`
}

type ModelConfig struct {
	Type   string         `yaml:"type" json:"type"`
	Params map[string]any `yaml:"params" json:"params,omitempty"`
}

type OutputConfig struct {
	ModelPath       string `yaml:"model_path" json:"model_path"`
	MetricsPath     string `yaml:"metrics_path" json:"metrics_path"`
	PredictionsPath string `yaml:"predictions_path" json:"predictions_path"`
}

// LedgerConfig points at the run history store. An empty DSN disables it.
type LedgerConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// Default returns the configuration used for keys the document omits.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			RawDataPath:       "data/raw/trade_history.csv",
			ProcessedDataPath: "data/processed/features.csv",
			TestSize:          0.2,
			RandomState:       42,
		},
		Features: FeatureConfig{
			Categorical: []string{"cat_id", "cat1", "gender"},
			Numerical: []string{
				"property_count",
				"has_special_property",
				"sum_properties",
				"day_year",
				"day_month",
				"buy_mount_log",
				"auction_id_last_digits",
			},
			Target: defaultTarget,
		},
		Model: ModelConfig{
			Type: model.TypeGradientBoosting,
		},
		Output: OutputConfig{
			ModelPath:       "models/age_model.gob",
			MetricsPath:     "results/metrics.json",
			PredictionsPath: "results/predictions.csv",
		},
		Ledger: LedgerConfig{
			DSN: DefaultLedgerDSN,
		},
		doc: Document{},
	}
}

// Load reads the YAML document at path and returns the validated Config.
// An unreadable file is returned as is; anything wrong with its content is
// a configuration error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errs.Config("config path required")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading config file: %s", path)
	}
	return c, nil
}

// Parse builds a Config from raw YAML content.
func Parse(b []byte) (*Config, error) {
	doc := Document{}
	if len(bytes.TrimSpace(b)) > 0 {
		var root any
		if err := yaml.Unmarshal(b, &root); err != nil {
			return nil, errs.Config("malformed document: %v", err)
		}
		m, ok := asMap(root)
		if root != nil && !ok {
			return nil, errs.Config("document root must be a mapping, got %T", root)
		}
		if m != nil {
			doc = Document(m)
		}
	}

	c, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Document returns the raw document backing c.
func (c *Config) Document() Document {
	return c.doc
}

// Get is a dotted-path lookup on the backing document.
func (c *Config) Get(path string, def any) any {
	return c.doc.Get(path, def)
}

// Set overrides a single key and refreshes the typed view. The config is
// left unchanged when the override does not decode or validate.
func (c *Config) Set(path string, value any) error {
	doc := cloneDocument(c.doc)
	doc.Set(path, value)

	n, err := decode(doc)
	if err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return err
	}

	n.Root = c.Root
	*c = *n
	return nil
}

// SetString applies a "key=value" override. The value is typed the way a
// YAML scalar would be, so "200" becomes an int and "0.05" a float.
func (c *Config) SetString(kv string) error {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return errs.Config("invalid override %q, expected key=value", kv)
	}

	if strings.TrimSpace(v) == "" {
		return c.Set(k, "")
	}

	var val any
	if err := yaml.Unmarshal([]byte(v), &val); err != nil {
		return errs.Config("invalid override value for %s: %v", k, err)
	}
	return c.Set(k, val)
}

// Path resolves p against Root. Absolute paths and URLs are returned as is.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || IsURL(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Validate checks the values the pipeline relies on.
func (c *Config) Validate() error {
	if c.Data.TestSize <= 0 || c.Data.TestSize >= 1 {
		return errs.Config("data.test_size must be in (0, 1), got %v", c.Data.TestSize)
	}
	if c.Model.Type == "" {
		return errs.Config("model.type required")
	}
	if len(c.Features.Categorical)+len(c.Features.Numerical) == 0 {
		return errs.Config("features.categorical and features.numerical are both empty")
	}
	if c.Features.Target == "" {
		return errs.Config("features.target required")
	}

	seen := make(map[string]bool)
	for _, f := range append(append([]string{}, c.Features.Categorical...), c.Features.Numerical...) {
		if f == "" {
			return errs.Config("empty feature name")
		}
		if seen[f] {
			return errs.Config("duplicate feature: %s", f)
		}
		if f == c.Features.Target {
			return errs.Config("target %s listed as a feature", f)
		}
		seen[f] = true
	}

	for k, v := range map[string]string{
		"data.raw_data_path":       c.Data.RawDataPath,
		"data.processed_data_path": c.Data.ProcessedDataPath,
		"output.model_path":        c.Output.ModelPath,
		"output.metrics_path":      c.Output.MetricsPath,
		"output.predictions_path":  c.Output.PredictionsPath,
	} {
		if strings.TrimSpace(v) == "" {
			return errs.Config("%s required", k)
		}
	}

	return nil
}

// IsURL reports whether p is an http(s) location.
func IsURL(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// decode maps doc onto the defaults. Unknown keys are rejected so a typo
// does not silently fall back to a default.
func decode(doc Document) (*Config, error) {
	c := Default()
	c.doc = doc

	b, err := yaml.Marshal(map[string]any(doc))
	if err != nil {
		return nil, errs.Config("error encoding document: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Config("invalid document: %v", err)
	}
	return c, nil
}

func cloneDocument(d Document) Document {
	out := Document{}
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(cloneDocument(t))
	case Document:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
