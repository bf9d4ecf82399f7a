package cli

import (
	"context"

	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/ledger"
	"github.com/urfave/cli/v3"
)

const (
	flagLimit = "limit"
	flagID    = "id"
)

func newRunsCmd() *cli.Command {
	return &cli.Command{
		Name:            "runs",
		HideHelpCommand: true,
		Usage:           "List recorded stage runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagLimit,
				Usage: "Limits number of runs returned",
				Value: ledger.DefaultListLimit,
			},
			&cli.StringFlag{
				Name:  flagID,
				Usage: "Show a single run",
			},
		},
		Action: cmdRuns,
	}
}

func cmdRuns(ctx context.Context, cmd *cli.Command) error {
	s := getLedger(ctx, cmd)
	if s == nil {
		return errs.Config("run ledger is disabled or unavailable, set ledger.dsn or --ledger")
	}

	if id := cmd.String(flagID); id != "" {
		r, err := s.GetRun(ctx, id)
		if err != nil {
			return err
		}
		return encode(cmd, r)
	}

	list, err := s.ListRuns(ctx, int(cmd.Int(flagLimit)))
	if err != nil {
		return err
	}
	return encode(cmd, list)
}
