package cli

import (
	"context"
	"strings"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/feature"
	"github.com/mchmarny/agepulse/pkg/pipeline"
	"github.com/mchmarny/agepulse/pkg/predict"
	"github.com/urfave/cli/v3"
)

const (
	flagCatID     = "cat-id"
	flagCat1      = "cat1"
	flagGender    = "gender"
	flagProperty  = "property"
	flagBuyMount  = "buy-mount"
	flagAuctionID = "auction-id"
	flagDayDate   = "day-date"
	flagField     = "field"
)

func newScoreCmd() *cli.Command {
	return &cli.Command{
		Name:            "score",
		HideHelpCommand: true,
		Usage:           "Predict the age of a single record",
		Flags: []cli.Flag{
			newModelFlag(),
			&cli.StringFlag{Name: flagCatID, Usage: "Category ID", Required: true},
			&cli.StringFlag{Name: flagCat1, Usage: "Top level category", Required: true},
			&cli.StringFlag{Name: flagGender, Usage: "Gender code (0 or 1)", Required: true},
			&cli.StringFlag{Name: flagProperty, Usage: "Semicolon separated property codes, e.g. 1001;21458;3002"},
			&cli.FloatFlag{Name: flagBuyMount, Usage: "Quantity purchased", Required: true},
			&cli.IntFlag{Name: flagAuctionID, Usage: "Auction ID", Required: true},
			&cli.StringFlag{Name: flagDayDate, Usage: "Transaction date (YYYY-MM-DD)", Required: true},
			&cli.StringSliceFlag{Name: flagField, Usage: "Value of another configured column, e.g. --field region=north (repeatable)"},
		},
		Action: cmdScore,
	}
}

func cmdScore(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	modelPath := pathFlag(cmd, flagModel, pipeline.PathsFrom(cfg.Config).Model)

	pl, err := predict.Load(modelPath)
	if err != nil {
		return err
	}

	rec := feature.RawRecord{
		CatID:     cmd.String(flagCatID),
		Cat1:      cmd.String(flagCat1),
		Gender:    cmd.String(flagGender),
		Property:  cmd.String(flagProperty),
		BuyMount:  cmd.Float(flagBuyMount),
		AuctionID: int64(cmd.Int(flagAuctionID)),
		DayDate:   cmd.String(flagDayDate),
	}

	for _, kv := range cmd.StringSlice(flagField) {
		k, v, ok := strings.Cut(kv, "=")
		if k = strings.TrimSpace(k); !ok || k == "" {
			return errs.Config("invalid field %q, expected name=value", kv)
		}
		if rec.Fields == nil {
			rec.Fields = map[string]string{}
		}
		rec.Fields[k] = v
	}

	s, err := predict.NewPredictor(cfg.Config).Score(rec, pl)
	if err != nil {
		return err
	}
	return encode(cmd, s)
}
