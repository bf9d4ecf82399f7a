package feature

import (
	"strconv"
	"time"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// Engineered feature names in their canonical order.
const (
	PropertyCount           = "property_count"
	HasSpecialProperty      = "has_special_property"
	SumProperties           = "sum_properties"
	DayYear                 = "day_year"
	DayMonth                = "day_month"
	BuyMountLogName         = "buy_mount_log"
	AuctionIDLastDigitsName = "auction_id_last_digits"
)

// Raw input columns the engineered features read.
const (
	ColProperty  = "property"
	ColDayDate   = "day_date"
	ColBuyMount  = "buy_mount"
	ColAuctionID = "auction_id"
)

// Default categorical columns of a record.
const (
	ColCatID  = "cat_id"
	ColCat1   = "cat1"
	ColGender = "gender"
)

// Engineered lists every derivable feature.
var Engineered = []string{
	PropertyCount,
	HasSpecialProperty,
	SumProperties,
	DayYear,
	DayMonth,
	BuyMountLogName,
	AuctionIDLastDigitsName,
}

var inputs = map[string]string{
	PropertyCount:           ColProperty,
	HasSpecialProperty:      ColProperty,
	SumProperties:           ColProperty,
	DayYear:                 ColDayDate,
	DayMonth:                ColDayDate,
	BuyMountLogName:         ColBuyMount,
	AuctionIDLastDigitsName: ColAuctionID,
}

// IsEngineered reports whether name is derived by this package.
func IsEngineered(name string) bool {
	_, ok := inputs[name]
	return ok
}

// Input returns the raw column an engineered feature is derived from.
func Input(name string) (string, bool) {
	c, ok := inputs[name]
	return c, ok
}

// RawRecord is one transactional observation.
type RawRecord struct {
	CatID     string
	Cat1      string
	Gender    string
	Property  string
	BuyMount  float64
	AuctionID int64
	DayDate   string
	Age       float64
	HasAge    bool

	// Fields holds values for configured columns beyond the fixed ones above.
	Fields map[string]string
}

// Value returns the text of a categorical or pass-through column.
func (r RawRecord) Value(col string) (string, bool) {
	switch col {
	case ColCatID:
		return r.CatID, true
	case ColCat1:
		return r.Cat1, true
	case ColGender:
		return r.Gender, true
	}
	v, ok := r.Fields[col]
	return v, ok
}

// Value is a single named feature value.
type Value struct {
	Name  string
	Value float64
}

// Vector holds engineered values in the order they were requested.
type Vector []Value

// Get returns the value of name.
func (v Vector) Get(name string) (float64, bool) {
	for _, x := range v {
		if x.Name == name {
			return x.Value, true
		}
	}
	return 0, false
}

// Map returns the vector keyed by name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for _, x := range v {
		m[x.Name] = x.Value
	}
	return m
}

// Extractor maps a RawRecord to engineered features. AsOf, when set,
// stands in for a record without a reference date.
type Extractor struct {
	AsOf time.Time
}

// Extract computes every engineered feature.
func (e Extractor) Extract(r RawRecord) (Vector, error) {
	return e.ExtractNames(r, Engineered...)
}

// ExtractNames computes only the named features, in the given order.
func (e Extractor) ExtractNames(r RawRecord, names ...string) (Vector, error) {
	out := make(Vector, 0, len(names))
	for _, n := range names {
		v, err := e.Compute(n, r)
		if err != nil {
			return nil, err
		}
		out = append(out, Value{Name: n, Value: v})
	}
	return out, nil
}

// Compute derives a single engineered feature.
func (e Extractor) Compute(name string, r RawRecord) (float64, error) {
	n, ok, err := e.integral(name, r)
	if err != nil {
		return 0, err
	}
	if ok {
		return float64(n), nil
	}

	switch name {
	case BuyMountLogName:
		return BuyMountLog(r.BuyMount)
	default:
		return 0, errs.Config("unknown engineered feature: %s", name)
	}
}

// Format derives a single engineered feature as table text. Integral
// features are rendered from their integer value, so a property sum past
// the float64 mantissa stays exact.
func (e Extractor) Format(name string, r RawRecord) (string, error) {
	n, ok, err := e.integral(name, r)
	if err != nil {
		return "", err
	}
	if ok {
		return strconv.FormatInt(n, 10), nil
	}

	v, err := e.Compute(name, r)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

// integral computes the integer-valued features. ok is false for any other name.
func (e Extractor) integral(name string, r RawRecord) (n int64, ok bool, err error) {
	switch name {
	case PropertyCount, HasSpecialProperty, SumProperties:
		pf, err := Property(r.Property)
		if err != nil {
			return 0, true, err
		}
		switch name {
		case PropertyCount:
			return pf.Count, true, nil
		case HasSpecialProperty:
			return pf.HasSpecial, true, nil
		default:
			return pf.Sum, true, nil
		}
	case DayYear, DayMonth:
		df, err := e.date(r.DayDate)
		if err != nil {
			return 0, true, err
		}
		if name == DayYear {
			return df.Year, true, nil
		}
		return df.Month, true, nil
	case AuctionIDLastDigitsName:
		d, err := AuctionIDLastDigits(r.AuctionID)
		return d, true, err
	default:
		return 0, false, nil
	}
}

func (e Extractor) date(s string) (DateFeatures, error) {
	if s == "" && !e.AsOf.IsZero() {
		return DateFeaturesOf(e.AsOf), nil
	}
	return Date(s)
}
