package dataset

import (
	"math"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/pkg/errors"
)

// Frame is a model table split into typed feature blocks and target.
type Frame struct {
	Categorical [][]string
	Numerical   [][]float64
	Target      []float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Categorical)
}

// Subset returns the rows at idx, in that order.
func (f *Frame) Subset(idx []int) *Frame {
	out := &Frame{
		Categorical: make([][]string, len(idx)),
		Numerical:   make([][]float64, len(idx)),
	}
	if f.Target != nil {
		out.Target = make([]float64, len(idx))
	}
	for i, j := range idx {
		out.Categorical[i] = f.Categorical[j]
		out.Numerical[i] = f.Numerical[j]
		if f.Target != nil {
			out.Target[i] = f.Target[j]
		}
	}
	return out
}

// ToFrame reads the schema's columns from a model table. The target is
// read only when withTarget is set. Numerical cells must parse; a
// non-finite value is reported as a data quality error.
func ToFrame(t *Table, s feature.Schema, withTarget bool) (*Frame, error) {
	catIdx, err := indexes(t, s.Categorical)
	if err != nil {
		return nil, err
	}
	numIdx, err := indexes(t, s.Numerical)
	if err != nil {
		return nil, err
	}
	targetIdx := -1
	if withTarget {
		if targetIdx = t.Index(s.Target); targetIdx < 0 {
			return nil, errs.DataQuality("missing target column: %s", s.Target)
		}
	}

	f := &Frame{
		Categorical: make([][]string, t.Len()),
		Numerical:   make([][]float64, t.Len()),
	}
	if withTarget {
		f.Target = make([]float64, t.Len())
	}

	for r, row := range t.Rows {
		cat := make([]string, len(catIdx))
		for j, i := range catIdx {
			cat[j] = row[i]
		}

		num := make([]float64, len(numIdx))
		for j, i := range numIdx {
			v, err := ParseNumber(row[i])
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", r+1, s.Numerical[j])
			}
			num[j] = v
		}

		f.Categorical[r] = cat
		f.Numerical[r] = num

		if withTarget {
			v, err := ParseNumber(row[targetIdx])
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %s", r+1, s.Target)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errs.DataQuality("row %d: non-finite target %v", r+1, v)
			}
			f.Target[r] = v
		}
	}

	return f, nil
}

func indexes(t *Table, cols []string) ([]int, error) {
	out := make([]int, len(cols))
	for j, c := range cols {
		i := t.Index(c)
		if i < 0 {
			return nil, errs.DataQuality("missing column: %s", c)
		}
		out[j] = i
	}
	return out, nil
}
