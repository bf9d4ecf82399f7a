package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mchmarny/agepulse/pkg/dataset"
	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/pkg/errors"
)

const (
	artifactFormat  = "agepulse/pipeline"
	artifactVersion = 1
)

// Pipeline is the persisted unit: the schema it was trained against, the
// fitted encoder, and the fitted regressor. Scoring always goes through a
// Pipeline so inputs are encoded exactly as they were during training.
type Pipeline struct {
	Schema    feature.Schema
	ModelType string
	Encoder   *OneHotEncoder
	Regressor Regressor
}

// Importance is one input's share of the model's total split gain.
type Importance struct {
	Feature string  `json:"feature" yaml:"feature"`
	Value   float64 `json:"importance" yaml:"importance"`
}

// NewPipeline returns an unfitted pipeline for schema and model settings.
func NewPipeline(s feature.Schema, modelType string, params map[string]any) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	r, err := NewRegressor(modelType, params)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Schema:    s,
		ModelType: modelType,
		Encoder:   NewOneHotEncoder(s.Categorical),
		Regressor: r,
	}, nil
}

// Fit learns the encoding and trains the regressor on f.
func (p *Pipeline) Fit(f *dataset.Frame) error {
	if f.Len() == 0 {
		return errs.DataQuality("no rows to train on")
	}
	if len(f.Target) != f.Len() {
		return errs.DataQuality("frame has %d targets for %d rows", len(f.Target), f.Len())
	}
	if err := p.Encoder.Fit(f.Categorical); err != nil {
		return err
	}
	x, err := p.Encoder.Transform(f.Categorical, f.Numerical)
	if err != nil {
		return err
	}
	return p.Regressor.Fit(x, f.Target)
}

// Predict scores every row of f. The target block, if any, is ignored.
func (p *Pipeline) Predict(f *dataset.Frame) ([]float64, error) {
	x, err := p.Encoder.Transform(f.Categorical, f.Numerical)
	if err != nil {
		return nil, err
	}
	return p.Regressor.Predict(x)
}

// Importances ranks the encoded inputs by their contribution, highest first.
// It returns nil when the regressor cannot rank its inputs.
func (p *Pipeline) Importances() []Importance {
	im, ok := p.Regressor.(Importancer)
	if !ok {
		return nil
	}
	vals := im.FeatureImportances()
	names := p.Encoder.FeatureNames(p.Schema.Numerical)
	if len(vals) != len(names) {
		return nil
	}

	out := make([]Importance, len(vals))
	for i := range vals {
		out[i] = Importance{Feature: names[i], Value: vals[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Value > out[j].Value
	})
	return out
}

type envelope struct {
	Format    string
	Version   int
	Schema    feature.Schema
	ModelType string
	Encoder   OneHotEncoder
	Model     []byte
}

// Save writes p to w.
func (p *Pipeline) Save(w io.Writer) error {
	b, err := p.Regressor.MarshalBinary()
	if err != nil {
		return err
	}
	env := envelope{
		Format:    artifactFormat,
		Version:   artifactVersion,
		Schema:    p.Schema,
		ModelType: p.ModelType,
		Encoder:   *p.Encoder,
		Model:     b,
	}
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return errors.Wrap(err, "error encoding pipeline")
	}
	return nil
}

// SaveFile writes p to path, creating parent directories. The file is
// written next to its final location and renamed into place.
func (p *Pipeline) SaveFile(path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "error creating model directory: %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return errors.Wrapf(err, "error creating model file in: %s", dir)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = p.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "error closing model file: %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "error moving model into place: %s", path)
	}
	return nil
}

// Load reads a pipeline written by Save. Anything unreadable or of a
// different format is an artifact error.
func Load(r io.Reader) (*Pipeline, error) {
	var env envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, errs.Artifact("error decoding model artifact: %v", err)
	}
	if env.Format != artifactFormat {
		return nil, errs.Artifact("unexpected artifact format: %q", env.Format)
	}
	if env.Version != artifactVersion {
		return nil, errs.Artifact("unsupported artifact version %d, expected %d", env.Version, artifactVersion)
	}
	if err := env.Schema.Validate(); err != nil {
		return nil, errs.Artifact("artifact schema is invalid: %v", err)
	}
	if len(env.Encoder.Columns) != len(env.Encoder.Categories) {
		return nil, errs.Artifact("artifact encoder is incomplete")
	}

	reg, err := NewRegressor(env.ModelType, nil)
	if err != nil {
		return nil, errs.Artifact("artifact model type: %v", err)
	}
	if err := reg.UnmarshalBinary(env.Model); err != nil {
		return nil, err
	}

	enc := env.Encoder
	return &Pipeline{
		Schema:    env.Schema,
		ModelType: env.ModelType,
		Encoder:   &enc,
		Regressor: reg,
	}, nil
}

// LoadFile reads a pipeline from path. A missing file means no model has
// been trained yet.
func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Artifact("model not found at %s, run training first", path)
		}
		return nil, errors.Wrapf(err, "error opening model: %s", path)
	}
	defer f.Close()

	p, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading model: %s", path)
	}
	return p, nil
}
