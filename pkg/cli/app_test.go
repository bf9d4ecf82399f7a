package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "agepulse-home")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Setenv("HOME", home)
	os.Unsetenv(envConfig)
	os.Unsetenv(envRoot)
	os.Unsetenv(envLedger)
	keyring.MockInit()
	initLogging(false)

	code := m.Run()
	os.RemoveAll(home)
	os.Exit(code)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run(context.Background(), append([]string{appName}, args...))
	return buf.String(), err
}

// newProject writes a raw table under a fresh root and returns the root.
func newProject(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "data", "raw", "trade_history.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	rng := rand.New(rand.NewSource(3))
	var b bytes.Buffer
	b.WriteString("cat_id,cat1,gender,property,buy_mount,auction_id,day_date,birthday_date,age\n")
	for i := 0; i < n; i++ {
		g := rng.Intn(2)
		bm := 1 + rng.Intn(4)
		fmt.Fprintf(&b, "%d,28,%d,%d;21458,%d,%d,2014-%02d-10,2013-01-01,%d\n",
			50014815+rng.Intn(2), g, rng.Intn(90), bm, rng.Int63n(1e9), 1+rng.Intn(12), 150+350*g+30*bm)
	}
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o600))
	return root
}

func baseArgs(root string) []string {
	return []string{"--root", root, "--ledger", ledgerOff, "--set", "model.params.n_estimators=20"}
}

func TestRunCommand(t *testing.T) {
	root := newProject(t, 120)

	out, err := runApp(t, append(baseArgs(root), "run")...)
	require.NoError(t, err)

	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	require.Contains(t, s, "train")
	metrics := s["train"].(map[string]any)["metrics"].(map[string]any)
	assert.Equal(t, 96.0, metrics["train_size"])
	assert.Equal(t, 24.0, metrics["test_size"])

	for _, f := range []string{
		"data/processed/features.csv",
		"models/age_model.gob",
		"results/metrics.json",
		"results/predictions.csv",
	} {
		_, err := os.Stat(filepath.Join(root, f))
		assert.NoError(t, err, f)
	}
	_, err = os.Stat(filepath.Join(root, config.DefaultLedgerDSN))
	assert.True(t, os.IsNotExist(err))
}

func TestStageCommands(t *testing.T) {
	root := newProject(t, 80)
	args := baseArgs(root)

	out, err := runApp(t, append(args, "--format", "yaml", "process", "--output", "work/features.csv")...)
	require.NoError(t, err)
	var stats map[string]int
	require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 80, stats["rowsOut"])

	_, err = runApp(t, append(args, "train", "--data", "work/features.csv", "--model", "work/m.gob", "--metrics", "work/metrics.json")...)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "work", "metrics.json"))
	require.NoError(t, err)

	out, err = runApp(t, append(args, "predict", "--data", "data/raw/trade_history.csv", "--model", "work/m.gob", "--output", "work/p.csv")...)
	require.NoError(t, err)
	var r map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 80.0, r["rows"])
	assert.Equal(t, filepath.Join(root, "work", "p.csv"), r["output"])
}

func TestScoreCommand(t *testing.T) {
	root := newProject(t, 120)
	args := []string{"--root", root, "--ledger", ledgerOff, "--set", "model.params.n_estimators=80"}

	_, err := runApp(t, append(args, "score",
		"--cat-id", "50014815", "--cat1", "28", "--gender", "1",
		"--buy-mount", "2", "--auction-id", "123456789", "--day-date", "2014-09-19")...)
	assert.ErrorIs(t, err, errs.ErrArtifact)

	_, err = runApp(t, append(args, "run")...)
	require.NoError(t, err)

	out, err := runApp(t, append(args, "score",
		"--cat-id", "50014815", "--cat1", "28", "--gender", "1", "--property", "1;21458",
		"--buy-mount", "2", "--auction-id", "123456789", "--day-date", "2014-09-19")...)
	require.NoError(t, err)

	var s map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.InDelta(t, 560, s["days"], 40)
	assert.InDelta(t, s["days"]/30, s["months"], 1e-9)

	_, err = runApp(t, append(args, "score",
		"--cat-id", "50014815", "--cat1", "28", "--gender", "1", "--field", "novalue",
		"--buy-mount", "2", "--auction-id", "123456789", "--day-date", "2014-09-19")...)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestRunsCommand(t *testing.T) {
	root := newProject(t, 60)
	args := []string{"--root", root, "--set", "model.params.n_estimators=10"}

	_, err := runApp(t, append(args, "run")...)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, config.DefaultLedgerDSN))
	require.NoError(t, err)

	out, err := runApp(t, append(args, "runs", "--limit", "2")...)
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)

	id := list[0]["id"].(string)
	out, err = runApp(t, append(args, "runs", "--id", id)...)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = runApp(t, "--root", root, "--ledger", ledgerOff, "runs")
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestConfigFile(t *testing.T) {
	root := newProject(t, 10)
	b, err := os.ReadFile("../../configs/config.yaml")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultFileName), b, 0o600))

	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.Action = func(context.Context, *cli.Command) error { return nil }
	require.NoError(t, app.Run(context.Background(), []string{appName, "--root", root, "--set", "data.test_size=0.3"}))

	cfg := app.Metadata[appConfigKey].(*appConfig).Config
	assert.Equal(t, 0.3, cfg.Data.TestSize)
	assert.Equal(t, 100, cfg.Model.Params["n_estimators"])
	assert.Equal(t, root, cfg.Root)
}

func TestGlobalFlagErrors(t *testing.T) {
	root := t.TempDir()

	_, err := runApp(t, "--root", root, "--format", "xml", "runs")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = runApp(t, "--root", root, "--set", "data.test_size=2", "runs")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = runApp(t, "--root", root, "--set", "novalue", "runs")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = runApp(t, "--root", root, "--config", filepath.Join(root, "missing.yaml"), "runs")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAuthCommands(t *testing.T) {
	t.Setenv("AGEPULSE_DATA_TOKEN", "")
	root := t.TempDir()

	out, err := runApp(t, "--root", root, "auth", "set", "--token", "secret")
	require.NoError(t, err)
	assert.JSONEq(t, `{"configured": true, "source": "keychain"}`, out)

	out, err = runApp(t, "--root", root, "auth", "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"configured": true, "source": "keychain"}`, out)

	out, err = runApp(t, "--root", root, "auth", "delete")
	require.NoError(t, err)
	assert.JSONEq(t, `{"configured": false}`, out)

	out, err = runApp(t, "--root", root, "auth", "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"configured": false}`, out)
}
