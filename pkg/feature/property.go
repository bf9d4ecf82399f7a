package feature

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
)

const (
	// SpecialPropertyCode marks the attribute flagged by has_special_property.
	SpecialPropertyCode = "21458"

	propertySeparator = ";"
)

var digitsRegEx = regexp.MustCompile(`\d+`)

// PropertyFeatures are derived from the semicolon-delimited property field.
type PropertyFeatures struct {
	Count      int64
	HasSpecial int64
	Sum        int64
}

// Property computes the attribute features. An empty field yields zeros.
// Sum adds every run of digits in the field regardless of the delimiters
// around it.
func Property(s string) (PropertyFeatures, error) {
	var pf PropertyFeatures
	if s == "" {
		return pf, nil
	}

	pf.Count = int64(len(strings.Split(s, propertySeparator)))

	if strings.Contains(s, SpecialPropertyCode) {
		pf.HasSpecial = 1
	}

	for _, m := range digitsRegEx.FindAllString(s, -1) {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return PropertyFeatures{}, errs.DataQuality("property number %s out of range", m)
		}
		if pf.Sum > maxInt64-n {
			return PropertyFeatures{}, errs.DataQuality("property sum overflows: %q", s)
		}
		pf.Sum += n
	}

	return pf, nil
}

const maxInt64 = int64(^uint64(0) >> 1)
