package feature

import (
	"strings"
	"time"

	"github.com/mchmarny/agepulse/pkg/errs"
)

// dateLayouts are tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// DateFeatures are derived from the reference date of a record.
type DateFeatures struct {
	Year  int64
	Month int64
}

// ParseDate parses a reference date in any of the supported layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errs.DataQuality("unparseable date: %q", s)
}

// Date returns the year and month of the reference date.
func Date(s string) (DateFeatures, error) {
	t, err := ParseDate(s)
	if err != nil {
		return DateFeatures{}, err
	}
	return DateFeaturesOf(t), nil
}

// DateFeaturesOf returns the year and month of t.
func DateFeaturesOf(t time.Time) DateFeatures {
	return DateFeatures{
		Year:  int64(t.Year()),
		Month: int64(t.Month()),
	}
}
