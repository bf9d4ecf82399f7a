package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRawPath = "testdata/raw_sample.csv"
)

func TestReadCSV(t *testing.T) {
	tb, err := ReadCSV(testRawPath)
	require.NoError(t, err)
	assert.Equal(t, 7, tb.Len())
	assert.Equal(t, 0, tb.Index("cat_id"))
	assert.Equal(t, 8, tb.Index("age"))
	assert.Equal(t, -1, tb.Index("nope"))
	assert.True(t, tb.Has("birthday_date"))

	ages, err := tb.Column("age")
	require.NoError(t, err)
	assert.Equal(t, "431", ages[0])
	assert.Equal(t, "", ages[6])

	_, err = tb.Column("nope")
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}

func TestReadCSV_Missing(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "none.csv"))
	require.Error(t, err)
	assert.Equal(t, "io", errs.Kind(err))
}

func TestReadCSVFrom_Invalid(t *testing.T) {
	_, err := ReadCSVFrom(strings.NewReader(""))
	assert.True(t, errors.Is(err, errs.ErrDataQuality))

	_, err = ReadCSVFrom(strings.NewReader("a,b\n1,2\n3\n"))
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}

func TestReadCSVFrom_BOMAndSpaces(t *testing.T) {
	tb, err := ReadCSVFrom(strings.NewReader("\ufeffa , b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tb.Columns)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	tb, err := ReadCSV(testRawPath)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "copy.csv")
	require.NoError(t, tb.WriteCSV(out))

	back, err := ReadCSV(out)
	require.NoError(t, err)
	assert.True(t, tb.Equal(back))
}

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", " ", "NA", "NaN", "nan", "null", "None", "N/A"} {
		assert.True(t, IsMissing(s), s)
	}
	for _, s := range []string{"0", "none1", "a"} {
		assert.False(t, IsMissing(s), s)
	}
}

func TestDropMissing(t *testing.T) {
	tb, err := ReadCSV(testRawPath)
	require.NoError(t, err)

	out, err := tb.DropMissing("cat_id", "age")
	require.NoError(t, err)
	assert.Equal(t, 5, out.Len())

	_, err = tb.DropMissing("nope")
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}

func TestTableEqual(t *testing.T) {
	a := NewTable([]string{"x"}, [][]string{{"1"}})
	b := NewTable([]string{"x"}, [][]string{{"1"}})
	c := NewTable([]string{"x"}, [][]string{{"2"}})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestWithout(t *testing.T) {
	tbl := NewTable([]string{"a", "b", "c"}, [][]string{{"1", "2", "3"}, {"4", "5", "6"}})

	out := tbl.Without("b", "zzz")
	assert.Equal(t, []string{"a", "c"}, out.Columns)
	assert.Equal(t, [][]string{{"1", "3"}, {"4", "6"}}, out.Rows)
	assert.Equal(t, 1, out.Index("c"))

	assert.Same(t, tbl, tbl.Without("zzz"))
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Columns)
}
