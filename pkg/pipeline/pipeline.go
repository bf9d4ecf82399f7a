// Package pipeline chains the processing, training and prediction stages
// over file paths.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"

	"github.com/mchmarny/agepulse/pkg/auth"
	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/dataset"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/mchmarny/agepulse/pkg/ledger"
	"github.com/mchmarny/agepulse/pkg/logging"
	"github.com/mchmarny/agepulse/pkg/net"
	"github.com/mchmarny/agepulse/pkg/predict"
	"github.com/mchmarny/agepulse/pkg/train"
	"github.com/pkg/errors"
)

const (
	StageFetch   = "fetch"
	StageProcess = "process"
	StageTrain   = "train"
	StagePredict = "predict"

	defaultFetchName = "raw.csv"
)

// Paths wires the stages together.
type Paths struct {
	RawData       string `json:"raw_data" yaml:"rawData"`
	ProcessedData string `json:"processed_data" yaml:"processedData"`
	Model         string `json:"model" yaml:"model"`
	Metrics       string `json:"metrics" yaml:"metrics"`
	Predictions   string `json:"predictions" yaml:"predictions"`
}

// PathsFrom returns the configured paths resolved against the project root.
func PathsFrom(c *config.Config) Paths {
	return Paths{
		RawData:       c.Path(c.Data.RawDataPath),
		ProcessedData: c.Path(c.Data.ProcessedDataPath),
		Model:         c.Path(c.Output.ModelPath),
		Metrics:       c.Path(c.Output.MetricsPath),
		Predictions:   c.Path(c.Output.PredictionsPath),
	}
}

// Summary is what a full run produced.
type Summary struct {
	Paths   Paths               `json:"paths" yaml:"paths"`
	Process *dataset.BuildStats `json:"process" yaml:"process"`
	Train   *train.Result       `json:"train" yaml:"train"`
	Predict *predict.Result     `json:"predict" yaml:"predict"`
}

// Orchestrator runs stages with the configuration it was built with. The
// ledger and HTTP client are optional.
type Orchestrator struct {
	config   *config.Config
	ledger   *ledger.Store
	client   *http.Client
	tokenDir string
	fetchDir string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records every stage run in s.
func WithLedger(s *ledger.Store) Option {
	return func(o *Orchestrator) { o.ledger = s }
}

// WithHTTPClient sets the client used to fetch remote raw data. Without it
// a client carrying the stored data token is created on demand.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// WithTokenDir sets where the file fallback of the data token lives.
func WithTokenDir(dir string) Option {
	return func(o *Orchestrator) { o.tokenDir = dir }
}

// WithFetchDir sets where remote raw data is downloaded to.
func WithFetchDir(dir string) Option {
	return func(o *Orchestrator) { o.fetchDir = dir }
}

// New returns an orchestrator for c.
func New(c *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{config: c}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetchDir == "" {
		o.fetchDir = c.Path(filepath.Join("data", "raw"))
	}
	return o
}

// Run executes process, train and predict in order and stops at the first
// failure. Prediction reads the processed table the first stage wrote.
func (o *Orchestrator) Run(ctx context.Context, p Paths) (*Summary, error) {
	s := &Summary{Paths: p}
	log := logging.FromContext(ctx).WithGroup("pipeline")

	raw, err := o.Localize(ctx, p.RawData)
	if err != nil {
		return nil, err
	}
	s.Paths.RawData = raw

	if s.Process, err = o.Process(ctx, raw, p.ProcessedData); err != nil {
		return nil, errors.Wrap(err, "process stage failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Train, err = o.Train(ctx, p.ProcessedData, p.Model, p.Metrics); err != nil {
		return nil, errors.Wrap(err, "train stage failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Predict, err = o.Predict(ctx, p.ProcessedData, p.Model, p.Predictions); err != nil {
		return nil, errors.Wrap(err, "predict stage failed")
	}

	log.Info("pipeline complete",
		"model", p.Model,
		"metrics", p.Metrics,
		"predictions", p.Predictions)
	return s, nil
}

// Localize returns a local path for in, downloading it first when it is
// an http(s) URL.
func (o *Orchestrator) Localize(ctx context.Context, in string) (string, error) {
	if !config.IsURL(in) {
		return in, nil
	}

	dst := filepath.Join(o.fetchDir, fetchName(in))
	run := ledger.NewRun(StageFetch)
	run.Inputs["url"] = in
	run.Outputs["data"] = dst

	client, err := o.httpClient(ctx)
	if err == nil {
		err = net.Download(ctx, client, in, dst)
	}
	o.record(ctx, run, err)
	if err != nil {
		return "", errors.Wrap(err, "error fetching raw data")
	}

	o.stageLog(ctx, StageFetch).Info("raw data fetched", "url", in, "path", dst)
	return dst, nil
}

// Process builds the processed table at out from the raw table at in.
func (o *Orchestrator) Process(ctx context.Context, in, out string) (*dataset.BuildStats, error) {
	run := ledger.NewRun(StageProcess)
	run.Inputs["raw"] = in
	run.Outputs["processed"] = out

	b := dataset.NewBuilder(o.schema())
	stats, err := b.BuildFile(in, out)
	if err == nil {
		run.Metrics = map[string]float64{
			"rows_in":  float64(stats.RowsIn),
			"rows_out": float64(stats.RowsOut),
			"dropped":  float64(stats.Dropped),
		}
	}
	o.record(ctx, run, err)
	if err != nil {
		return nil, err
	}

	o.stageLog(ctx, StageProcess).Info("processed data saved",
		"path", out,
		"rows", stats.RowsOut,
		"dropped", stats.Dropped)
	return stats, nil
}

// Train fits a model on the processed table at data.
func (o *Orchestrator) Train(ctx context.Context, data, model, metrics string) (*train.Result, error) {
	run := ledger.NewRun(StageTrain)
	run.Inputs["processed"] = data
	run.Outputs["model"] = model
	run.Outputs["metrics"] = metrics

	r, err := train.NewTrainer(o.config).TrainFile(data, model, metrics)
	if err == nil {
		run.Metrics = map[string]float64{
			"rmse":       r.Metrics.RMSE,
			"r2_score":   r.Metrics.R2,
			"mae":        r.Metrics.MAE,
			"train_size": float64(r.Metrics.TrainSize),
			"test_size":  float64(r.Metrics.TestSize),
		}
	}
	o.record(ctx, run, err)
	if err != nil {
		return nil, err
	}

	o.stageLog(ctx, StageTrain).Info("model trained",
		"rmse", r.Metrics.RMSE,
		"r2", r.Metrics.R2,
		"train", r.Metrics.TrainSize,
		"test", r.Metrics.TestSize)
	return r, nil
}

// Predict scores the table at data with the model and writes out.
func (o *Orchestrator) Predict(ctx context.Context, data, model, out string) (*predict.Result, error) {
	run := ledger.NewRun(StagePredict)
	run.Inputs["data"] = data
	run.Inputs["model"] = model
	run.Outputs["predictions"] = out

	r, err := predict.NewPredictor(o.config).PredictFile(data, model, out)
	if err == nil {
		run.Metrics = map[string]float64{
			"rows": float64(r.Rows),
			"min":  r.Min,
			"max":  r.Max,
			"mean": r.Mean,
		}
	}
	o.record(ctx, run, err)
	if err != nil {
		return nil, err
	}

	o.stageLog(ctx, StagePredict).Info("predictions saved",
		"path", out,
		"rows", r.Rows,
		"min", r.Min,
		"max", r.Max)
	return r, nil
}

func (o *Orchestrator) schema() feature.Schema {
	f := o.config.Features
	return feature.NewSchema(f.Categorical, f.Numerical, f.Target)
}

func (o *Orchestrator) stageLog(ctx context.Context, stage string) *slog.Logger {
	return logging.FromContext(ctx).WithGroup(stage)
}

// record finishes run and stores it. A ledger failure is only logged.
func (o *Orchestrator) record(ctx context.Context, run *ledger.Run, err error) {
	run.Finish(err)
	if o.ledger == nil {
		return
	}
	if lerr := o.ledger.SaveRun(ctx, run); lerr != nil {
		o.stageLog(ctx, run.Stage).Warn("error recording run", "error", lerr)
		return
	}
	o.stageLog(ctx, run.Stage).Debug("run recorded", "id", run.ID, "status", run.Status)
}

func (o *Orchestrator) httpClient(ctx context.Context) (*http.Client, error) {
	if o.client != nil {
		return o.client, nil
	}

	token, src, err := auth.GetToken(o.tokenDir)
	if err != nil && !errors.Is(err, auth.ErrNoToken) {
		return nil, err
	}
	if token != "" {
		o.stageLog(ctx, StageFetch).Debug("using data token", "source", src)
	}
	return net.GetBearerClient(ctx, token)
}

func fetchName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return defaultFetchName
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return defaultFetchName
	}
	return name
}
