package model

import (
	"encoding"
	"math"
	"slices"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// TypeGradientBoosting is the model.type value selecting the boosted tree
// ensemble.
const TypeGradientBoosting = "GradientBoostingRegressor"

// Regressor is a trainable numeric predictor. Implementations persist
// themselves through the binary marshaling interfaces.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Importancer is implemented by regressors that can rank their inputs.
type Importancer interface {
	FeatureImportances() []float64
}

// NewRegressor returns an unfitted regressor of the given type configured
// with params. Unknown types or parameters are configuration errors.
func NewRegressor(modelType string, params map[string]any) (Regressor, error) {
	switch modelType {
	case TypeGradientBoosting:
		return NewGradientBoostingRegressor(params)
	default:
		return nil, errs.Config("unsupported model type: %q", modelType)
	}
}

// paramReader pulls typed values out of a loosely typed parameter map and
// remembers which keys were consumed.
type paramReader struct {
	params map[string]any
	used   map[string]bool
	err    error
}

func newParamReader(params map[string]any) *paramReader {
	return &paramReader{params: params, used: make(map[string]bool)}
}

func (r *paramReader) lookup(key string) (any, bool) {
	r.used[key] = true
	v, ok := r.params[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *paramReader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return int(t)
		}
	}
	r.err = errs.Config("model.params.%s must be an integer, got %v", key, v)
	return def
}

func (r *paramReader) Float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	}
	r.err = errs.Config("model.params.%s must be a number, got %v", key, v)
	return def
}

func (r *paramReader) String(key, def string) string {
	v, ok := r.lookup(key)
	if !ok || r.err != nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	r.err = errs.Config("model.params.%s must be a string, got %v", key, v)
	return def
}

// Err returns the first type error, or an error naming keys never read.
func (r *paramReader) Err() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for k := range r.params {
		if !r.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return errs.Config("unknown model.params: %s", strings.Join(unknown, ", "))
	}
	return nil
}
