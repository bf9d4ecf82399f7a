// Package dataset reads and writes tabular files and turns a raw table into
// the model-ready table both training and scoring consume.
package dataset

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/pkg/errors"
)

// Builder derives the model-ready table for a schema.
type Builder struct {
	Schema    feature.Schema
	Extractor feature.Extractor
}

// NewBuilder returns a builder for s.
func NewBuilder(s feature.Schema) *Builder {
	return &Builder{Schema: s}
}

// BuildStats counts what a build kept.
type BuildStats struct {
	RowsIn  int `json:"rows_in" yaml:"rowsIn"`
	RowsOut int `json:"rows_out" yaml:"rowsOut"`
	Dropped int `json:"dropped" yaml:"dropped"`
}

// numericSource says where a numerical output column comes from.
type numericSource struct {
	name    string
	derived bool
	col     int // input column when not derived
}

// plan is the column wiring of one build.
type plan struct {
	categorical []int
	numeric     []numericSource
	target      int
	required    []int

	property  int
	dayDate   int
	buyMount  int
	auctionID int
}

// Build returns categorical ++ numerical ++ [target] for every raw row with
// a value in each required column. Rows with a missing value are dropped,
// not imputed. The target column is carried only when raw has one.
//
// An engineered column already present in raw is taken as is, so building a
// built table returns it unchanged.
func (b *Builder) Build(raw *Table) (*Table, error) {
	p, err := b.plan(raw)
	if err != nil {
		return nil, err
	}

	cols := b.Schema.Columns()
	if p.target >= 0 {
		cols = append(cols, b.Schema.Target)
	}

	rows := make([][]string, 0, raw.Len())
	for i, row := range raw.Rows {
		if anyMissing(row, p.required) {
			continue
		}
		out, err := b.buildRow(p, row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		rows = append(rows, out)
	}

	if dropped := raw.Len() - len(rows); dropped > 0 {
		slog.Debug("dropped rows with missing values", "dropped", dropped, "kept", len(rows))
	}

	return NewTable(cols, rows), nil
}

// BuildFile reads the raw table at in, builds it and writes the result to out.
func (b *Builder) BuildFile(in, out string) (*BuildStats, error) {
	raw, err := ReadCSV(in)
	if err != nil {
		return nil, err
	}

	t, err := b.Build(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "error building %s", in)
	}

	if err := t.WriteCSV(out); err != nil {
		return nil, err
	}

	return &BuildStats{
		RowsIn:  raw.Len(),
		RowsOut: t.Len(),
		Dropped: raw.Len() - t.Len(),
	}, nil
}

func (b *Builder) plan(raw *Table) (*plan, error) {
	p := &plan{
		target:    raw.Index(b.Schema.Target),
		property:  raw.Index(feature.ColProperty),
		dayDate:   raw.Index(feature.ColDayDate),
		buyMount:  raw.Index(feature.ColBuyMount),
		auctionID: raw.Index(feature.ColAuctionID),
	}

	required := make(map[int]bool)
	need := func(name string) (int, error) {
		i := raw.Index(name)
		if i < 0 {
			return -1, errs.DataQuality("missing required column: %s", name)
		}
		required[i] = true
		return i, nil
	}

	for _, c := range b.Schema.Categorical {
		i, err := need(c)
		if err != nil {
			return nil, err
		}
		p.categorical = append(p.categorical, i)
	}

	for _, n := range b.Schema.Numerical {
		if raw.Has(n) {
			i, _ := need(n)
			p.numeric = append(p.numeric, numericSource{name: n, col: i})
			continue
		}

		in, ok := feature.Input(n)
		if !ok {
			return nil, errs.Config("unknown numerical feature: %s", n)
		}
		if !b.optional(in) {
			if _, err := need(in); err != nil {
				return nil, err
			}
		}
		p.numeric = append(p.numeric, numericSource{name: n, derived: true, col: -1})
	}

	if p.target >= 0 {
		required[p.target] = true
	}

	for i := range raw.Columns {
		if required[i] {
			p.required = append(p.required, i)
		}
	}

	return p, nil
}

// optional reports whether a raw input may be absent or empty.
func (b *Builder) optional(col string) bool {
	switch col {
	case feature.ColProperty:
		return true
	case feature.ColDayDate:
		return !b.Extractor.AsOf.IsZero()
	default:
		return false
	}
}

func (b *Builder) buildRow(p *plan, row []string) ([]string, error) {
	out := make([]string, 0, len(p.categorical)+len(p.numeric)+1)
	for _, i := range p.categorical {
		out = append(out, row[i])
	}

	var rec *feature.RawRecord
	for _, src := range p.numeric {
		if !src.derived {
			v, err := CanonicalNumber(row[src.col])
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", src.name)
			}
			out = append(out, v)
			continue
		}

		if rec == nil {
			r, err := p.record(row)
			if err != nil {
				return nil, err
			}
			rec = r
		}

		v, err := b.Extractor.Format(src.name, *rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if p.target >= 0 {
		v, err := CanonicalNumber(row[p.target])
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", b.Schema.Target)
		}
		out = append(out, v)
	}

	return out, nil
}

// record parses the raw inputs present in row. Absent columns stay zero.
func (p *plan) record(row []string) (*feature.RawRecord, error) {
	r := &feature.RawRecord{}
	if p.property >= 0 && !IsMissing(row[p.property]) {
		r.Property = row[p.property]
	}
	if p.dayDate >= 0 && !IsMissing(row[p.dayDate]) {
		r.DayDate = strings.TrimSpace(row[p.dayDate])
	}
	if p.buyMount >= 0 && !IsMissing(row[p.buyMount]) {
		v, err := ParseNumber(row[p.buyMount])
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", feature.ColBuyMount)
		}
		r.BuyMount = v
	}
	if p.auctionID >= 0 && !IsMissing(row[p.auctionID]) {
		v, err := ParseInt(row[p.auctionID])
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", feature.ColAuctionID)
		}
		r.AuctionID = v
	}
	return r, nil
}

// ParseNumber parses a numeric cell.
func ParseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errs.DataQuality("not a number: %q", s)
	}
	return v, nil
}

// ParseInt parses an integral cell. Integral floats such as "12.0", which
// spreadsheet exports often produce, are accepted.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, errs.DataQuality("not an integer: %q", s)
	}
	return int64(f), nil
}

// CanonicalNumber normalizes a numeric cell. Integer text is kept exact
// instead of passing through float64.
func CanonicalNumber(s string) (string, error) {
	if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return strconv.FormatInt(v, 10), nil
	}
	v, err := ParseNumber(s)
	if err != nil {
		return "", err
	}
	return FormatNumber(v), nil
}

// FormatNumber renders v with the fewest digits that parse back to v.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
