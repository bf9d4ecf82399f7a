package cli

import (
	"context"

	"github.com/mchmarny/agepulse/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

const (
	flagInput   = "input"
	flagData    = "data"
	flagModel   = "model"
	flagMetrics = "metrics"
	flagOutput  = "output"
)

func newInputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagInput,
		Usage: "Raw table path or http(s) URL (default: data.raw_data_path)",
	}
}

func newDataFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagData,
		Usage: "Processed table path (default: data.processed_data_path)",
	}
}

func newModelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  flagModel,
		Usage: "Model artifact path (default: output.model_path)",
	}
}

func newProcessCmd() *cli.Command {
	return &cli.Command{
		Name:            "process",
		HideHelpCommand: true,
		Usage:           "Build the processed feature table from raw data",
		Flags: []cli.Flag{
			newInputFlag(),
			&cli.StringFlag{
				Name:  flagOutput,
				Usage: "Processed table path (default: data.processed_data_path)",
			},
		},
		Action: cmdProcess,
	}
}

func newTrainCmd() *cli.Command {
	return &cli.Command{
		Name:            "train",
		HideHelpCommand: true,
		Usage:           "Train the model and write the artifact and metrics",
		Flags: []cli.Flag{
			newDataFlag(),
			newModelFlag(),
			&cli.StringFlag{
				Name:  flagMetrics,
				Usage: "Metrics document path (default: output.metrics_path)",
			},
		},
		Action: cmdTrain,
	}
}

func newPredictCmd() *cli.Command {
	return &cli.Command{
		Name:            "predict",
		HideHelpCommand: true,
		Usage:           "Score a raw or processed table with a trained model",
		Flags: []cli.Flag{
			newDataFlag(),
			newModelFlag(),
			&cli.StringFlag{
				Name:  flagOutput,
				Usage: "Predictions path (default: output.predictions_path)",
			},
		},
		Action: cmdPredict,
	}
}

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:            "run",
		HideHelpCommand: true,
		Usage:           "Run process, train and predict in sequence",
		Flags: []cli.Flag{
			newInputFlag(),
		},
		Action: cmdRun,
	}
}

func cmdProcess(ctx context.Context, cmd *cli.Command) error {
	p := pipeline.PathsFrom(getConfig(cmd).Config)
	o := newOrchestrator(ctx, cmd)

	in, err := o.Localize(ctx, pathFlag(cmd, flagInput, p.RawData))
	if err != nil {
		return err
	}

	stats, err := o.Process(ctx, in, pathFlag(cmd, flagOutput, p.ProcessedData))
	if err != nil {
		return err
	}
	return encode(cmd, stats)
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	p := pipeline.PathsFrom(getConfig(cmd).Config)

	r, err := newOrchestrator(ctx, cmd).Train(ctx,
		pathFlag(cmd, flagData, p.ProcessedData),
		pathFlag(cmd, flagModel, p.Model),
		pathFlag(cmd, flagMetrics, p.Metrics))
	if err != nil {
		return err
	}
	return encode(cmd, r)
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	p := pipeline.PathsFrom(getConfig(cmd).Config)

	r, err := newOrchestrator(ctx, cmd).Predict(ctx,
		pathFlag(cmd, flagData, p.ProcessedData),
		pathFlag(cmd, flagModel, p.Model),
		pathFlag(cmd, flagOutput, p.Predictions))
	if err != nil {
		return err
	}
	return encode(cmd, r)
}

func cmdRun(ctx context.Context, cmd *cli.Command) error {
	p := pipeline.PathsFrom(getConfig(cmd).Config)
	p.RawData = pathFlag(cmd, flagInput, p.RawData)

	s, err := newOrchestrator(ctx, cmd).Run(ctx, p)
	if err != nil {
		return err
	}
	return encode(cmd, s)
}
