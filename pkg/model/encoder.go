package model

import (
	"fmt"
	"slices"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// OneHotEncoder expands categorical columns into indicator columns. Values
// not seen during Fit encode as all zeros rather than failing.
type OneHotEncoder struct {
	Columns    []string
	Categories [][]string

	index []map[string]int
}

// NewOneHotEncoder returns an unfitted encoder for columns.
func NewOneHotEncoder(columns []string) *OneHotEncoder {
	return &OneHotEncoder{Columns: slices.Clone(columns)}
}

// Fit learns the sorted distinct values of each column.
func (e *OneHotEncoder) Fit(cat [][]string) error {
	sets := make([]map[string]bool, len(e.Columns))
	for j := range sets {
		sets[j] = make(map[string]bool)
	}

	for i, row := range cat {
		if len(row) != len(e.Columns) {
			return errs.DataQuality("row %d has %d categorical values, expected %d", i+1, len(row), len(e.Columns))
		}
		for j, v := range row {
			sets[j][v] = true
		}
	}

	e.Categories = make([][]string, len(e.Columns))
	for j, s := range sets {
		vals := make([]string, 0, len(s))
		for v := range s {
			vals = append(vals, v)
		}
		slices.Sort(vals)
		e.Categories[j] = vals
	}
	e.index = nil
	return nil
}

// Width returns the number of indicator columns.
func (e *OneHotEncoder) Width() int {
	w := 0
	for _, c := range e.Categories {
		w += len(c)
	}
	return w
}

// FeatureNames names the encoded columns followed by the numerical ones.
func (e *OneHotEncoder) FeatureNames(numerical []string) []string {
	out := make([]string, 0, e.Width()+len(numerical))
	for j, col := range e.Columns {
		for _, v := range e.Categories[j] {
			out = append(out, fmt.Sprintf("%s=%s", col, v))
		}
	}
	return append(out, numerical...)
}

// Transform returns the indicator block followed by num, row by row.
func (e *OneHotEncoder) Transform(cat [][]string, num [][]float64) ([][]float64, error) {
	if e.Categories == nil && len(e.Columns) > 0 {
		return nil, errs.Artifact("encoder is not fitted")
	}
	if len(cat) != len(num) {
		return nil, errs.DataQuality("categorical rows %d != numerical rows %d", len(cat), len(num))
	}
	e.buildIndex()

	w := e.Width()
	out := make([][]float64, len(cat))
	for i := range cat {
		if len(cat[i]) != len(e.Columns) {
			return nil, errs.DataQuality("row %d has %d categorical values, expected %d", i+1, len(cat[i]), len(e.Columns))
		}

		row := make([]float64, w, w+len(num[i]))
		offset := 0
		for j, v := range cat[i] {
			if k, ok := e.index[j][v]; ok {
				row[offset+k] = 1
			}
			offset += len(e.Categories[j])
		}
		out[i] = append(row, num[i]...)
	}
	return out, nil
}

func (e *OneHotEncoder) buildIndex() {
	if e.index != nil {
		return
	}
	e.index = make([]map[string]int, len(e.Categories))
	for j, vals := range e.Categories {
		m := make(map[string]int, len(vals))
		for k, v := range vals {
			m[v] = k
		}
		e.index[j] = m
	}
}
