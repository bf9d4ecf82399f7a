package dataset

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() feature.Schema {
	return feature.NewSchema([]string{"cat_id", "cat1", "gender"}, feature.Engineered, "age")
}

func buildSample(t *testing.T) *Table {
	t.Helper()
	raw, err := ReadCSV(testRawPath)
	require.NoError(t, err)
	out, err := NewBuilder(testSchema()).Build(raw)
	require.NoError(t, err)
	return out
}

func TestBuild(t *testing.T) {
	out := buildSample(t)

	assert.Equal(t, testSchema().TableColumns(), out.Columns)
	require.Equal(t, 4, out.Len())

	assert.Equal(t, []string{
		"50014815", "28", "1",
		"3", "1", "25461", "2014", "9", FormatNumber(math.Log1p(2)), "789",
		"431",
	}, out.Rows[0])

	assert.Equal(t, []string{
		"50006842", "28", "0",
		"2", "1", "125459814", "2014", "2", FormatNumber(math.Log1p(1)), "944",
		"415",
	}, out.Rows[1])

	// missing property yields zeros, the row is kept
	assert.Equal(t, []string{
		"50013636", "50008168", "1",
		"0", "0", "0", "2013", "12", FormatNumber(math.Log1p(3)), "97",
		"61",
	}, out.Rows[2])

	// integral float auction id, missing birthday is irrelevant
	assert.Equal(t, "530", out.Rows[3][9])
}

func TestBuild_Idempotent(t *testing.T) {
	raw, err := ReadCSV(testRawPath)
	require.NoError(t, err)
	b := NewBuilder(testSchema())

	first, err := b.Build(raw)
	require.NoError(t, err)
	second, err := b.Build(raw)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	rebuilt, err := b.Build(first)
	require.NoError(t, err)
	assert.True(t, first.Equal(rebuilt))
}

func TestBuild_NoTarget(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "cat1", "gender", "property", "buy_mount", "auction_id", "day_date"},
		[][]string{{"1", "2", "0", "", "0", "5", "2014-01-01"}},
	)
	out, err := NewBuilder(testSchema()).Build(raw)
	require.NoError(t, err)
	assert.Equal(t, testSchema().Columns(), out.Columns)
	assert.Equal(t, []string{"1", "2", "0", "0", "0", "0", "2014", "1", "0", "5"}, out.Rows[0])
}

func TestBuild_PropertyColumnOptional(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "cat1", "gender", "buy_mount", "auction_id", "day_date", "age"},
		[][]string{{"1", "2", "0", "1", "5", "2014-01-01", "10"}},
	)
	out, err := NewBuilder(testSchema()).Build(raw)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"0", "0", "0"}, out.Rows[0][3:6])
}

func TestBuild_MissingColumn(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "cat1", "property", "buy_mount", "auction_id", "day_date", "age"},
		[][]string{{"1", "2", "", "1", "5", "2014-01-01", "10"}},
	)
	_, err := NewBuilder(testSchema()).Build(raw)
	assert.True(t, errors.Is(err, errs.ErrDataQuality))

	raw = NewTable(
		[]string{"cat_id", "cat1", "gender", "property", "auction_id", "day_date", "age"},
		[][]string{{"1", "2", "0", "", "5", "2014-01-01", "10"}},
	)
	_, err = NewBuilder(testSchema()).Build(raw)
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}

func TestBuild_UnknownNumerical(t *testing.T) {
	raw, err := ReadCSV(testRawPath)
	require.NoError(t, err)
	s := feature.NewSchema([]string{"cat_id"}, []string{"days_diff"}, "age")
	_, err = NewBuilder(s).Build(raw)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestBuild_LargePropertySumExact(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "cat1", "gender", "property", "buy_mount", "auction_id", "day_date", "age"},
		[][]string{{"1", "2", "0", "9007199254740993", "1", "5", "2014-01-01", "10"}},
	)
	b := NewBuilder(testSchema())
	out, err := b.Build(raw)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "9007199254740993", out.Rows[0][5])

	rebuilt, err := b.Build(out)
	require.NoError(t, err)
	assert.True(t, out.Equal(rebuilt))
}

func TestCanonicalNumber(t *testing.T) {
	tests := map[string]string{
		"9007199254740993": "9007199254740993",
		" 42 ":             "42",
		"530.0":            "530",
		"1.50":             "1.5",
	}
	for in, want := range tests {
		got, err := CanonicalNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CanonicalNumber("abc")
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}

func TestBuild_PassthroughNumerical(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "score", "age"},
		[][]string{{"a", "1.50", "3"}, {"b", "", "4"}},
	)
	s := feature.NewSchema([]string{"cat_id"}, []string{"score"}, "age")
	out, err := NewBuilder(s).Build(raw)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"a", "1.5", "3"}, out.Rows[0])
}

func TestBuild_BadValues(t *testing.T) {
	cols := []string{"cat_id", "cat1", "gender", "property", "buy_mount", "auction_id", "day_date", "age"}
	tests := []struct {
		name string
		row  []string
	}{
		{"negative quantity", []string{"1", "2", "0", "", "-1", "5", "2014-01-01", "10"}},
		{"negative auction", []string{"1", "2", "0", "", "1", "-5", "2014-01-01", "10"}},
		{"bad date", []string{"1", "2", "0", "", "1", "5", "someday", "10"}},
		{"bad quantity", []string{"1", "2", "0", "", "many", "5", "2014-01-01", "10"}},
		{"bad target", []string{"1", "2", "0", "", "1", "5", "2014-01-01", "old"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(testSchema()).Build(NewTable(cols, [][]string{tt.row}))
			assert.True(t, errors.Is(err, errs.ErrDataQuality), "%v", err)
		})
	}
}

func TestBuild_AsOf(t *testing.T) {
	raw := NewTable(
		[]string{"cat_id", "cat1", "gender", "property", "buy_mount", "auction_id", "day_date"},
		[][]string{{"1", "2", "0", "", "0", "5", ""}},
	)

	out, err := NewBuilder(testSchema()).Build(raw)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	b := NewBuilder(testSchema())
	b.Extractor.AsOf = time.Date(2019, time.July, 1, 0, 0, 0, 0, time.UTC)
	out, err = b.Build(raw)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"2019", "7"}, out.Rows[0][6:8])
}

func TestBuildFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "processed", "features.csv")
	stats, err := NewBuilder(testSchema()).BuildFile(testRawPath, out)
	require.NoError(t, err)
	assert.Equal(t, &BuildStats{RowsIn: 7, RowsOut: 4, Dropped: 3}, stats)

	back, err := ReadCSV(out)
	require.NoError(t, err)
	assert.True(t, buildSample(t).Equal(back))
}

func TestParseInt(t *testing.T) {
	v, err := ParseInt("123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), v)

	v, err = ParseInt(" 530.0 ")
	require.NoError(t, err)
	assert.Equal(t, int64(530), v)

	for _, s := range []string{"1.5", "abc", "inf"} {
		_, err := ParseInt(s)
		assert.True(t, errors.Is(err, errs.ErrDataQuality), s)
	}
}

func TestToFrame(t *testing.T) {
	out := buildSample(t)

	f, err := ToFrame(out, testSchema(), true)
	require.NoError(t, err)
	require.Equal(t, 4, f.Len())
	assert.Equal(t, []string{"50014815", "28", "1"}, f.Categorical[0])
	assert.Equal(t, 25461.0, f.Numerical[0][2])
	assert.Equal(t, []float64{431, 415, 61, 200}, f.Target)

	sub := f.Subset([]int{3, 0})
	assert.Equal(t, []float64{200, 431}, sub.Target)
	assert.Equal(t, f.Categorical[3], sub.Categorical[0])

	f, err = ToFrame(out, testSchema(), false)
	require.NoError(t, err)
	assert.Nil(t, f.Target)

	noTarget := NewTable(testSchema().Columns(), nil)
	_, err = ToFrame(noTarget, testSchema(), true)
	assert.True(t, errors.Is(err, errs.ErrDataQuality))
}
