package train

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/dataset"
	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/mchmarny/agepulse/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrainer() *Trainer {
	return &Trainer{
		Schema:      feature.NewSchema([]string{"gender"}, []string{"day_year", "buy_mount_log"}, "age"),
		ModelType:   model.TypeGradientBoosting,
		Params:      map[string]any{"n_estimators": 50, "random_state": 42},
		TestSize:    0.2,
		RandomState: 42,
	}
}

// syntheticTable returns n processed rows where age depends on gender and
// buy_mount_log.
func syntheticTable(n int) *dataset.Table {
	rng := rand.New(rand.NewSource(1))
	rows := make([][]string, n)
	for i := range rows {
		g := rng.Intn(2)
		bm := rng.Float64() * 3
		age := 500 + 1500*float64(g) + 300*bm + rng.NormFloat64()*20
		rows[i] = []string{
			fmt.Sprint(g),
			fmt.Sprint(2013 + rng.Intn(2)),
			dataset.FormatNumber(bm),
			dataset.FormatNumber(age),
		}
	}
	return dataset.NewTable([]string{"gender", "day_year", "buy_mount_log", "age"}, rows)
}

func TestTrain(t *testing.T) {
	p, m, err := testTrainer().Train(syntheticTable(1000))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, 800, m.TrainSize)
	assert.Equal(t, 200, m.TestSize)
	assert.Greater(t, m.R2, 0.9)
	assert.Greater(t, m.RMSE, 0.0)
	assert.LessOrEqual(t, m.MAE, m.RMSE)
}

func TestTrain_Deterministic(t *testing.T) {
	tbl := syntheticTable(300)
	_, m1, err := testTrainer().Train(tbl)
	require.NoError(t, err)
	_, m2, err := testTrainer().Train(tbl)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestTrain_DropsIncompleteRows(t *testing.T) {
	tbl := syntheticTable(100)
	tbl.Rows[0][3] = ""
	tbl.Rows[1][2] = "NaN"

	_, m, err := testTrainer().Train(tbl)
	require.NoError(t, err)
	assert.Equal(t, 98, m.TrainSize+m.TestSize)
}

func TestTrain_ConfigErrorFirst(t *testing.T) {
	tr := testTrainer()
	tr.ModelType = "LinearRegression"

	empty := dataset.NewTable([]string{"x"}, nil)
	_, _, err := tr.Train(empty)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestTrain_DataErrors(t *testing.T) {
	_, _, err := testTrainer().Train(dataset.NewTable([]string{"gender", "age"}, nil))
	assert.ErrorIs(t, err, errs.ErrDataQuality)

	_, _, err = testTrainer().Train(syntheticTable(1))
	assert.ErrorIs(t, err, errs.ErrDataQuality)

	tbl := syntheticTable(10)
	tbl.Rows[3][1] = "abc"
	_, _, err = testTrainer().Train(tbl)
	assert.ErrorIs(t, err, errs.ErrDataQuality)
}

func TestTrainFile(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "features.csv")
	require.NoError(t, syntheticTable(200).WriteCSV(data))

	modelPath := filepath.Join(dir, "models", "age_model.gob")
	metricsPath := filepath.Join(dir, "results", "metrics.json")

	r, err := testTrainer().TrainFile(data, modelPath, metricsPath)
	require.NoError(t, err)
	assert.Equal(t, 160, r.Metrics.TrainSize)
	assert.NotEmpty(t, r.Importances)
	assert.LessOrEqual(t, len(r.Importances), topImportances)

	m, err := ReadMetrics(metricsPath)
	require.NoError(t, err)
	assert.Equal(t, r.Metrics, m)

	p, err := model.LoadFile(modelPath)
	require.NoError(t, err)
	assert.True(t, p.Schema.Equal(testTrainer().Schema))
}

func TestNewTrainer(t *testing.T) {
	c := config.Default()
	c.Model.Params = map[string]any{"n_estimators": 10}

	tr := NewTrainer(c)
	assert.Equal(t, c.Features.Numerical, tr.Schema.Numerical)
	assert.Equal(t, "age", tr.Schema.Target)
	assert.Equal(t, 0.2, tr.TestSize)
	assert.Equal(t, int64(42), tr.RandomState)
	assert.Equal(t, 10, tr.Params["n_estimators"])
}
