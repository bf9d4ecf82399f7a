// Package cli implements the agepulse command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/agepulse/pkg/config"
	"github.com/mchmarny/agepulse/pkg/errs"
	"github.com/mchmarny/agepulse/pkg/ledger"
	"github.com/mchmarny/agepulse/pkg/logging"
	"github.com/mchmarny/agepulse/pkg/pipeline"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "agepulse"

	flagConfig = "config"
	flagRoot   = "root"
	flagSet    = "set"
	flagDebug  = "debug"
	flagFormat = "format"
	flagLedger = "ledger"

	dirMode      = 0700
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"

	ledgerOff = "none"

	envConfig = "AGEPULSE_CONFIG"
	envRoot   = "AGEPULSE_ROOT"
	envLedger = "AGEPULSE_LEDGER"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "kind", errs.Kind(err), "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Config  *config.Config
	Format  string
	Debug   bool
	HomeDir string

	ledger     *ledger.Store
	ledgerDone bool
}

func getConfig(cmd *cli.Command) *appConfig {
	c, ok := cmd.Root().Metadata[appConfigKey].(*appConfig)
	if !ok {
		return &appConfig{Config: config.Default(), Format: formatJSON}
	}
	return c
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            appName,
		Version:         fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:           "Predict age in days from transactional purchase records",
		HideHelpCommand: true,
		Metadata:        map[string]any{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   fmt.Sprintf("Path to the configuration file (default: <root>/%s)", config.DefaultFileName),
				Sources: cli.EnvVars(envConfig),
			},
			&cli.StringFlag{
				Name:    flagRoot,
				Usage:   "Project root relative paths resolve against",
				Value:   ".",
				Sources: cli.EnvVars(envRoot),
			},
			&cli.StringSliceFlag{
				Name:  flagSet,
				Usage: "Override a configuration key, e.g. --set model.params.n_estimators=200 (repeatable)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
			&cli.StringFlag{
				Name:    flagLedger,
				Usage:   fmt.Sprintf("Run history DSN, a SQLite path or postgres:// URL (%q disables)", ledgerOff),
				Sources: cli.EnvVars(envLedger),
			},
		},
		Commands: []*cli.Command{
			newProcessCmd(),
			newTrainCmd(),
			newPredictCmd(),
			newRunCmd(),
			newScoreCmd(),
			newRunsCmd(),
			newAuthCmd(),
		},
		Before: before,
		After: func(_ context.Context, cmd *cli.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.ledger != nil {
				cfg.ledger.Close()
			}
			return nil
		},
	}
}

func before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	debug := cmd.Bool(flagDebug)
	if debug {
		initLogging(true)
	}

	format := strings.ToLower(cmd.String(flagFormat))
	switch format {
	case formatJSON:
	case formatYAML, "yml":
		format = formatYAML
	default:
		return ctx, errs.Config("unsupported output format: %s", format)
	}

	c, err := loadConfig(cmd)
	if err != nil {
		return ctx, err
	}

	cmd.Root().Metadata[appConfigKey] = &appConfig{
		Config:  c,
		Format:  format,
		Debug:   debug,
		HomeDir: getHomeDir(),
	}
	return logging.WithLogger(ctx, slog.Default()), nil
}

// loadConfig reads the configuration document and applies --root, --ledger
// and --set. A missing default document falls back to built-in defaults;
// a missing explicit one is an error.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	root, err := filepath.Abs(cmd.String(flagRoot))
	if err != nil {
		return nil, errors.Wrapf(err, "error resolving root: %s", cmd.String(flagRoot))
	}

	path := cmd.String(flagConfig)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, config.DefaultFileName)
	}

	var c *config.Config
	if _, statErr := os.Stat(path); !explicit && errors.Is(statErr, os.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		c = config.Default()
	} else {
		if c, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	c.Root = root

	for _, kv := range cmd.StringSlice(flagSet) {
		if err := c.SetString(kv); err != nil {
			return nil, err
		}
	}

	if cmd.IsSet(flagLedger) {
		dsn := cmd.String(flagLedger)
		if dsn == ledgerOff {
			dsn = ""
		}
		c.Ledger.DSN = dsn
	}

	slog.Debug("config loaded", "path", path, "root", root, "model", c.Model.Type)
	return c, nil
}

// ledgerDSN resolves a SQLite ledger path against the project root.
func ledgerDSN(c *config.Config) string {
	dsn := c.Ledger.DSN
	if dsn == "" || ledger.Driver(dsn) != "sqlite" {
		return dsn
	}
	return c.Path(dsn)
}

// getLedger opens the configured ledger once. It returns nil when the
// ledger is disabled or cannot be opened, since history is never required
// to run a stage.
func getLedger(ctx context.Context, cmd *cli.Command) *ledger.Store {
	cfg := getConfig(cmd)
	if cfg.ledgerDone {
		return cfg.ledger
	}
	cfg.ledgerDone = true

	dsn := ledgerDSN(cfg.Config)
	if dsn == "" {
		return nil
	}
	s, err := ledger.Init(ctx, dsn)
	if err != nil {
		slog.Warn("run ledger unavailable", "error", err)
		return nil
	}
	cfg.ledger = s
	return s
}

func newOrchestrator(ctx context.Context, cmd *cli.Command) *pipeline.Orchestrator {
	cfg := getConfig(cmd)
	opts := []pipeline.Option{pipeline.WithTokenDir(cfg.HomeDir)}
	if s := getLedger(ctx, cmd); s != nil {
		opts = append(opts, pipeline.WithLedger(s))
	}
	return pipeline.New(cfg.Config, opts...)
}

// pathFlag returns the flag value resolved against the root, or def.
func pathFlag(cmd *cli.Command, name, def string) string {
	if v := cmd.String(name); v != "" {
		return getConfig(cmd).Config.Path(v)
	}
	return def
}

func initLogging(debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}

	dirPath := filepath.Join(home, "."+appName)
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			slog.Debug("error creating dir", "path", dirPath, "home", home, "error", err)
			return home
		}
	}
	return dirPath
}

func encode(cmd *cli.Command, v any) error {
	var w io.Writer = os.Stdout
	if root := cmd.Root(); root != nil && root.Writer != nil {
		w = root.Writer
	}

	if getConfig(cmd).Format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
