package model

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultEstimators   = 100
	defaultLearningRate = 0.1
	defaultMaxDepth     = 3
	defaultMinSplit     = 2
	defaultMinLeaf      = 1
	defaultSubsample    = 1.0

	lossSquaredError = "squared_error"

	// rows scored per worker
	predictChunk = 2048
)

// GradientBoostingRegressor is a stagewise additive ensemble of regression
// trees fitted to the residuals of squared error loss. It starts from the
// target mean and adds LearningRate times each tree's prediction.
type GradientBoostingRegressor struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64
	Loss            string

	init      float64
	trees     []*regressionTree
	nFeatures int
}

// NewGradientBoostingRegressor builds an unfitted ensemble from params.
// Missing keys take the defaults; a null max_depth grows trees without a
// depth limit.
func NewGradientBoostingRegressor(params map[string]any) (*GradientBoostingRegressor, error) {
	r := newParamReader(params)
	m := &GradientBoostingRegressor{
		NEstimators:     r.Int("n_estimators", defaultEstimators),
		LearningRate:    r.Float("learning_rate", defaultLearningRate),
		MaxDepth:        r.Int("max_depth", defaultMaxDepth),
		MinSamplesSplit: r.Int("min_samples_split", defaultMinSplit),
		MinSamplesLeaf:  r.Int("min_samples_leaf", defaultMinLeaf),
		Subsample:       r.Float("subsample", defaultSubsample),
		RandomState:     int64(r.Int("random_state", 0)),
		Loss:            r.String("loss", lossSquaredError),
	}
	if v, ok := params["max_depth"]; ok && v == nil {
		m.MaxDepth = 0
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GradientBoostingRegressor) validate() error {
	switch {
	case m.NEstimators < 1:
		return errs.Config("n_estimators must be >= 1, got %d", m.NEstimators)
	case m.LearningRate <= 0 || math.IsNaN(m.LearningRate) || math.IsInf(m.LearningRate, 0):
		return errs.Config("learning_rate must be > 0, got %v", m.LearningRate)
	case m.MaxDepth < 0:
		return errs.Config("max_depth must be >= 0, got %d", m.MaxDepth)
	case m.MinSamplesSplit < 2:
		return errs.Config("min_samples_split must be >= 2, got %d", m.MinSamplesSplit)
	case m.MinSamplesLeaf < 1:
		return errs.Config("min_samples_leaf must be >= 1, got %d", m.MinSamplesLeaf)
	case m.Subsample <= 0 || m.Subsample > 1:
		return errs.Config("subsample must be in (0, 1], got %v", m.Subsample)
	case m.Loss != lossSquaredError:
		return errs.Config("unsupported loss: %q", m.Loss)
	}
	return nil
}

// Fit trains the ensemble. Inputs must be a non-empty rectangular matrix of
// finite values with one target per row.
func (m *GradientBoostingRegressor) Fit(x [][]float64, y []float64) error {
	if err := m.validate(); err != nil {
		return err
	}
	if err := checkMatrix(x, -1); err != nil {
		return err
	}
	if len(y) != len(x) {
		return errs.DataQuality("got %d targets for %d rows", len(y), len(x))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.DataQuality("target at row %d is not finite: %v", i+1, v)
		}
	}

	n := len(x)
	m.nFeatures = len(x[0])
	m.init = mean(y)
	m.trees = make([]*regressionTree, 0, m.NEstimators)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.init
	}
	resid := make([]float64, n)

	rng := rand.New(rand.NewSource(m.RandomState))
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	nSub := n
	if m.Subsample < 1 {
		nSub = max(1, int(m.Subsample*float64(n)))
	}

	b := newTreeBuilder(x, m.MaxDepth, m.MinSamplesSplit, m.MinSamplesLeaf)
	for s := 0; s < m.NEstimators; s++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}

		rows := all
		if nSub < n {
			rows = rng.Perm(n)[:nSub]
			sort.Ints(rows)
		}

		t := b.fit(resid, rows)
		for i := range pred {
			pred[i] += m.LearningRate * t.predict(x[i])
		}
		m.trees = append(m.trees, t)
	}
	return nil
}

// Predict scores each row of x.
func (m *GradientBoostingRegressor) Predict(x [][]float64) ([]float64, error) {
	if m.trees == nil {
		return nil, errs.Artifact("model is not fitted")
	}
	if len(x) == 0 {
		return []float64{}, nil
	}
	if err := checkMatrix(x, m.nFeatures); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < len(x); lo += predictChunk {
		hi := min(lo+predictChunk, len(x))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				out[i] = m.score(x[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *GradientBoostingRegressor) score(row []float64) float64 {
	v := m.init
	for _, t := range m.trees {
		v += m.LearningRate * t.predict(row)
	}
	return v
}

// FeatureImportances returns the share of total squared error reduction
// each input column contributed across the ensemble. Values sum to 1
// unless no tree ever split.
func (m *GradientBoostingRegressor) FeatureImportances() []float64 {
	imp := make([]float64, m.nFeatures)
	total := 0.0
	for _, t := range m.trees {
		for _, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			imp[n.Feature] += n.Gain
			total += n.Gain
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

// gbrState is the persisted form of a fitted ensemble.
type gbrState struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64
	Loss            string
	Init            float64
	NFeatures       int
	Trees           []regressionTree
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *GradientBoostingRegressor) MarshalBinary() ([]byte, error) {
	s := gbrState{
		NEstimators:     m.NEstimators,
		LearningRate:    m.LearningRate,
		MaxDepth:        m.MaxDepth,
		MinSamplesSplit: m.MinSamplesSplit,
		MinSamplesLeaf:  m.MinSamplesLeaf,
		Subsample:       m.Subsample,
		RandomState:     m.RandomState,
		Loss:            m.Loss,
		Init:            m.init,
		NFeatures:       m.nFeatures,
		Trees:           make([]regressionTree, len(m.trees)),
	}
	for i, t := range m.trees {
		s.Trees[i] = *t
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "error encoding gradient boosting model")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *GradientBoostingRegressor) UnmarshalBinary(b []byte) error {
	var s gbrState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return errs.Artifact("error decoding gradient boosting model: %v", err)
	}

	for i, t := range s.Trees {
		if len(t.Nodes) == 0 {
			return errs.Artifact("tree %d has no nodes", i)
		}
		// children always follow their parent, which also rules out cycles
		for j, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= s.NFeatures ||
				n.Left <= j || n.Left >= len(t.Nodes) ||
				n.Right <= j || n.Right >= len(t.Nodes) {
				return errs.Artifact("tree %d is malformed", i)
			}
		}
	}

	m.NEstimators = s.NEstimators
	m.LearningRate = s.LearningRate
	m.MaxDepth = s.MaxDepth
	m.MinSamplesSplit = s.MinSamplesSplit
	m.MinSamplesLeaf = s.MinSamplesLeaf
	m.Subsample = s.Subsample
	m.RandomState = s.RandomState
	m.Loss = s.Loss
	m.init = s.Init
	m.nFeatures = s.NFeatures
	m.trees = make([]*regressionTree, len(s.Trees))
	for i := range s.Trees {
		m.trees[i] = &s.Trees[i]
	}
	return nil
}

// checkMatrix verifies x is rectangular and finite. A width of -1 accepts
// whatever the first row has.
func checkMatrix(x [][]float64, width int) error {
	if len(x) == 0 {
		return errs.DataQuality("no rows to fit")
	}
	if width < 0 {
		width = len(x[0])
		if width == 0 {
			return errs.DataQuality("rows have no features")
		}
	}
	for i, row := range x {
		if len(row) != width {
			if i == 0 {
				return errs.Artifact("model expects %d features, got %d", width, len(row))
			}
			return errs.DataQuality("row %d has %d features, expected %d", i+1, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.DataQuality("row %d feature %d is not finite: %v", i+1, j, v)
			}
		}
	}
	return nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
