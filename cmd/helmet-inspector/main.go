// Command helmet-inspector marks people with and without helmets in folders
// of site photos, locally or through a remote store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	helmetinspector "github.com/menta2k/helmet-inspector"
	"github.com/menta2k/helmet-inspector/internal/config"
	"github.com/menta2k/helmet-inspector/internal/logging"
	"github.com/menta2k/helmet-inspector/pkg/batch"
	"github.com/menta2k/helmet-inspector/pkg/storage"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
	flagIn       = "in"
	flagOut      = "out"
	flagImage    = "image"
	flagForce    = "force"
)

// Exit codes for failures the operator has to act on
const (
	exitAuth      = 2
	exitDetection = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdin, os.Stdout)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	return &cli.App{
		Name:      "helmet-inspector",
		Usage:     "mark workers with and without helmets in site photos",
		Version:   helmetinspector.Version,
		Writer:    out,
		Reader:    in,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to the JSON config file",
				Value:   config.GetConfigPath(),
				EnvVars: []string{"HELMET_CONFIG"},
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error (overrides the config)",
			},
		},
		Action: syncAction,
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "download from the source folder, process, upload to the destination folder",
				Action: syncAction,
			},
			{
				Name:   "local",
				Usage:  "process source_dir into dest_dir and archive the originals",
				Action: localAction,
			},
			{
				Name:      "batch",
				Usage:     "process a directory or a single image",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagIn, Usage: "input directory or image (default: source_dir)"},
					&cli.StringFlag{Name: flagOut, Usage: "output directory (default: dest_dir)"},
				},
				Action: batchAction,
			},
			{
				Name:  "probe",
				Usage: "check that the detector answers for one image",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagImage, Usage: "image to send", Required: true},
				},
				Action: probeAction,
			},
			{
				Name:  "config",
				Usage: "manage the config file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "write a config file with default values",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: flagForce, Usage: "overwrite an existing file"},
						},
						Action: configInitAction,
					},
				},
			},
		},
	}
}

// runEnv carries what every command needs
type runEnv struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func setup(c *cli.Context) (*runEnv, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String(flagLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}
	return &runEnv{cfg: cfg, logger: logger}, nil
}

// exitError maps the failures the operator has to act on to distinct exit codes
func exitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrAuth):
		return cli.Exit(fmt.Sprintf("authentication failed: %v", err), exitAuth)
	case errors.Is(err, batch.ErrDetection):
		return cli.Exit(fmt.Sprintf("detection failed: %v", err), exitDetection)
	}
	return err
}
