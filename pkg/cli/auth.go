package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mchmarny/agepulse/pkg/auth"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

const flagToken = "token"

func newAuthCmd() *cli.Command {
	return &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Manage the token used to fetch remote raw data",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store the data token in the OS keychain",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagToken,
						Usage: "Data source token (read from stdin when omitted)",
					},
				},
				Action: cmdAuthSet,
			},
			{
				Name:   "status",
				Usage:  "Show where the data token comes from",
				Action: cmdAuthStatus,
			},
			{
				Name:   "delete",
				Usage:  "Remove the stored data token",
				Action: cmdAuthDelete,
			},
		},
	}
}

type authStatus struct {
	Configured bool        `json:"configured" yaml:"configured"`
	Source     auth.Source `json:"source,omitempty" yaml:"source,omitempty"`
}

func cmdAuthSet(_ context.Context, cmd *cli.Command) error {
	token := cmd.String(flagToken)
	if token == "" {
		fmt.Fprint(os.Stderr, "token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, "error reading token")
		}
		token = strings.TrimSpace(line)
	}

	src, err := auth.SaveToken(getConfig(cmd).HomeDir, token)
	if err != nil {
		return err
	}
	return encode(cmd, &authStatus{Configured: true, Source: src})
}

func cmdAuthStatus(_ context.Context, cmd *cli.Command) error {
	_, src, err := auth.GetToken(getConfig(cmd).HomeDir)
	if err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			return encode(cmd, &authStatus{})
		}
		return err
	}
	return encode(cmd, &authStatus{Configured: true, Source: src})
}

func cmdAuthDelete(_ context.Context, cmd *cli.Command) error {
	if err := auth.DeleteToken(getConfig(cmd).HomeDir); err != nil {
		return err
	}
	return encode(cmd, &authStatus{})
}
