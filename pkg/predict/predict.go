// Package predict scores raw or processed tables with a trained pipeline.
package predict

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/dataset"
	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/mchmarny/agepulse/pkg/model"
	"github.com/pkg/errors"
)

const (
	// PredictionColumn is the single column of the predictions table.
	PredictionColumn = "prediction"

	daysPerMonth = 30
	daysPerYear  = 365
)

// Load reads the model artifact at path.
func Load(path string) (*model.Pipeline, error) {
	return model.LoadFile(path)
}

// Predictor applies a trained pipeline. When Schema is set, artifacts
// trained against a different schema are refused.
type Predictor struct {
	Schema    *feature.Schema
	Extractor feature.Extractor
}

// NewPredictor returns a predictor bound to the configured schema.
func NewPredictor(c *config.Config) *Predictor {
	s := feature.NewSchema(c.Features.Categorical, c.Features.Numerical, c.Features.Target)
	return &Predictor{Schema: &s}
}

// Result summarizes a PredictFile run.
type Result struct {
	Rows   int     `json:"rows" yaml:"rows"`
	Output string  `json:"output" yaml:"output"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
}

// Score is a single prediction in the units people read ages in.
type Score struct {
	Days   float64 `json:"days" yaml:"days"`
	Months float64 `json:"months" yaml:"months"`
	Years  float64 `json:"years" yaml:"years"`
}

// NewScore converts a prediction in days.
func NewScore(days float64) *Score {
	return &Score{
		Days:   days,
		Months: days / daysPerMonth,
		Years:  days / daysPerYear,
	}
}

// Check verifies pl was trained against the configured schema.
func (p *Predictor) Check(pl *model.Pipeline) error {
	if p.Schema == nil {
		return nil
	}
	if !p.Schema.Equal(pl.Schema) {
		return errs.Artifact("model was trained on features %v, configuration lists %v",
			pl.Schema.Columns(), p.Schema.Columns())
	}
	return nil
}

// Predict builds raw with the pipeline's own schema and scores every row
// that survives the build, in input order. raw may be a raw or an already
// processed table; a target column, if present, is ignored.
func (p *Predictor) Predict(raw *dataset.Table, pl *model.Pipeline) ([]float64, error) {
	if err := p.Check(pl); err != nil {
		return nil, err
	}

	raw = raw.Without(pl.Schema.Target)
	if err := checkColumns(raw, pl.Schema); err != nil {
		return nil, err
	}

	b := &dataset.Builder{Schema: pl.Schema, Extractor: p.Extractor}
	built, err := b.Build(raw)
	if err != nil {
		return nil, err
	}

	f, err := dataset.ToFrame(built, pl.Schema, false)
	if err != nil {
		return nil, err
	}
	if f.Len() < raw.Len() {
		slog.Debug("rows not scored", "dropped", raw.Len()-f.Len())
	}
	return pl.Predict(f)
}

// PredictFile scores the table at data with the model at modelPath and
// writes a single prediction column to out.
func (p *Predictor) PredictFile(data, modelPath, out string) (*Result, error) {
	pl, err := Load(modelPath)
	if err != nil {
		return nil, err
	}

	raw, err := dataset.ReadCSV(data)
	if err != nil {
		return nil, err
	}

	pred, err := p.Predict(raw, pl)
	if err != nil {
		return nil, errors.Wrapf(err, "error predicting %s", data)
	}

	rows := make([][]string, len(pred))
	for i, v := range pred {
		rows[i] = []string{dataset.FormatNumber(v)}
	}
	if err := dataset.NewTable([]string{PredictionColumn}, rows).WriteCSV(out); err != nil {
		return nil, err
	}

	r := &Result{Rows: len(pred), Output: out}
	if len(pred) > 0 {
		r.Min, r.Max = math.Inf(1), math.Inf(-1)
		sum := 0.0
		for _, v := range pred {
			r.Min = math.Min(r.Min, v)
			r.Max = math.Max(r.Max, v)
			sum += v
		}
		r.Mean = sum / float64(len(pred))
	}
	return r, nil
}

// checkColumns verifies raw can feed every feature column of s. A feature
// that is neither present nor derivable means the model was trained on
// inputs this data does not have.
func checkColumns(raw *dataset.Table, s feature.Schema) error {
	for _, c := range s.Categorical {
		if !raw.Has(c) {
			return errs.Artifact("model expects column %s the data does not provide", c)
		}
	}
	for _, c := range s.Numerical {
		if !raw.Has(c) && !feature.IsEngineered(c) {
			return errs.Artifact("model expects column %s the data does not provide", c)
		}
	}
	return nil
}

// Score predicts the age of a single record. Columns are taken from the
// model's schema; a record missing any value the model needs is a data
// quality error.
func (p *Predictor) Score(rec feature.RawRecord, pl *model.Pipeline) (*Score, error) {
	var cols, row []string
	for _, c := range pl.Schema.Categorical {
		v, ok := rec.Value(c)
		if !ok {
			return nil, errs.DataQuality("record has no value for %s", c)
		}
		cols = append(cols, c)
		row = append(row, v)
	}
	for _, c := range pl.Schema.Numerical {
		if feature.IsEngineered(c) {
			continue
		}
		v, ok := rec.Value(c)
		if !ok {
			return nil, errs.DataQuality("record has no value for %s", c)
		}
		cols = append(cols, c)
		row = append(row, v)
	}
	cols = append(cols, feature.ColProperty, feature.ColBuyMount, feature.ColAuctionID, feature.ColDayDate)
	row = append(row,
		rec.Property,
		dataset.FormatNumber(rec.BuyMount),
		strconv.FormatInt(rec.AuctionID, 10),
		rec.DayDate)

	t := dataset.NewTable(cols, [][]string{row})
	pred, err := p.Predict(t, pl)
	if err != nil {
		return nil, err
	}
	if len(pred) != 1 {
		return nil, errs.DataQuality("record is missing values the model needs")
	}
	return NewScore(pred[0]), nil
}
