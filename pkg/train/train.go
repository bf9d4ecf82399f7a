// Package train fits the model pipeline on a processed table and scores it
// on a held-out split.
package train

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/dataset"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/mchmarny/agepulse/pkg/model"
	"github.com/pkg/errors"
)

const topImportances = 10

// Metrics is the held-out evaluation of a trained model.
type Metrics struct {
	RMSE      float64 `json:"rmse" yaml:"rmse"`
	R2        float64 `json:"r2_score" yaml:"r2_score"`
	MAE       float64 `json:"mae" yaml:"mae"`
	TrainSize int     `json:"train_size" yaml:"train_size"`
	TestSize  int     `json:"test_size" yaml:"test_size"`
}

// Result is what TrainFile reports back.
type Result struct {
	Metrics     *Metrics           `json:"metrics" yaml:"metrics"`
	ModelPath   string             `json:"model_path" yaml:"model_path"`
	MetricsPath string             `json:"metrics_path" yaml:"metrics_path"`
	Importances []model.Importance `json:"importances,omitempty" yaml:"importances,omitempty"`
}

// Trainer holds the settings of one training run.
type Trainer struct {
	Schema      feature.Schema
	ModelType   string
	Params      map[string]any
	TestSize    float64
	RandomState int64
}

// NewTrainer returns a trainer configured from c.
func NewTrainer(c *config.Config) *Trainer {
	return &Trainer{
		Schema:      feature.NewSchema(c.Features.Categorical, c.Features.Numerical, c.Features.Target),
		ModelType:   c.Model.Type,
		Params:      c.Model.Params,
		TestSize:    c.Data.TestSize,
		RandomState: c.Data.RandomState,
	}
}

// Train fits a pipeline on the train share of tbl and evaluates it on the
// test share. The regressor is configured before any data is touched so a
// bad model section fails fast.
func (t *Trainer) Train(tbl *dataset.Table) (*model.Pipeline, *Metrics, error) {
	p, err := model.NewPipeline(t.Schema, t.ModelType, t.Params)
	if err != nil {
		return nil, nil, err
	}

	clean, err := tbl.DropMissing(t.Schema.TableColumns()...)
	if err != nil {
		return nil, nil, err
	}
	if n := tbl.Len() - clean.Len(); n > 0 {
		slog.Debug("dropped incomplete training rows", "dropped", n)
	}

	f, err := dataset.ToFrame(clean, t.Schema, true)
	if err != nil {
		return nil, nil, err
	}

	trainIdx, testIdx, err := model.TrainTestSplit(f.Len(), t.TestSize, t.RandomState)
	if err != nil {
		return nil, nil, err
	}
	trainSet := f.Subset(trainIdx)
	testSet := f.Subset(testIdx)

	slog.Debug("fitting model",
		"type", t.ModelType,
		"train", trainSet.Len(),
		"test", testSet.Len())

	if err := p.Fit(trainSet); err != nil {
		return nil, nil, errors.Wrap(err, "error fitting model")
	}

	pred, err := p.Predict(testSet)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error scoring test split")
	}

	m := &Metrics{
		RMSE:      model.RMSE(testSet.Target, pred),
		R2:        model.R2(testSet.Target, pred),
		MAE:       model.MAE(testSet.Target, pred),
		TrainSize: trainSet.Len(),
		TestSize:  testSet.Len(),
	}
	return p, m, nil
}

// TrainFile trains on the processed table at data, then writes the model
// artifact and the metrics document.
func (t *Trainer) TrainFile(data, modelPath, metricsPath string) (*Result, error) {
	tbl, err := dataset.ReadCSV(data)
	if err != nil {
		return nil, err
	}

	p, m, err := t.Train(tbl)
	if err != nil {
		return nil, errors.Wrapf(err, "error training on %s", data)
	}

	if err := p.SaveFile(modelPath); err != nil {
		return nil, err
	}
	if err := WriteMetrics(metricsPath, m); err != nil {
		return nil, err
	}

	r := &Result{
		Metrics:     m,
		ModelPath:   modelPath,
		MetricsPath: metricsPath,
		Importances: p.Importances(),
	}
	if len(r.Importances) > topImportances {
		r.Importances = r.Importances[:topImportances]
	}
	return r, nil
}

// WriteMetrics writes m as indented JSON, creating parent directories.
func WriteMetrics(path string, m *Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "error creating dir for: %s", path)
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding metrics")
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "error writing metrics: %s", path)
	}
	return nil
}

// ReadMetrics reads a document written by WriteMetrics.
func ReadMetrics(path string) (*Metrics, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading metrics: %s", path)
	}
	var m Metrics
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrapf(err, "error decoding metrics: %s", path)
	}
	return &m, nil
}
