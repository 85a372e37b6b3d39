package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/menta2k/helmet-inspector/internal/config"
	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/orchestrator"
	"github.com/menta2k/helmet-inspector/pkg/processing"
)

func syncAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	if err := env.cfg.ValidateRemote(); err != nil {
		return err
	}

	connector, err := buildConnector(env.cfg, env.logger, c.App.Reader, c.App.Writer)
	if err != nil {
		return exitError(err)
	}
	processor, closeDetector, err := buildProcessor(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer closeDetector()

	o := orchestrator.NewSyncOrchestrator(connector, processor, orchestrator.Config{
		SourceFolderID: env.cfg.Remote.SourceFolderID,
		DestFolderID:   env.cfg.Remote.DestFolderID,
		StagingDir:     env.cfg.StagingDir,
	}, env.logger)

	report, err := o.Run(c.Context)
	if err != nil {
		return exitError(err)
	}
	if report.TransferErrors != nil {
		env.logger.Warnw("some transfers failed", "error", report.TransferErrors)
	}
	return nil
}

func localAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	processor, closeDetector, err := buildProcessor(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer closeDetector()

	r := orchestrator.NewLocalRunner(processor, env.cfg.SourceDir, env.cfg.DestDir, env.cfg.ArchivePath(), env.logger)
	report, err := r.Run(c.Context)
	if err != nil {
		return exitError(err)
	}
	env.logger.Infow("local run finished", "processed", len(report.Batch.Processed),
		"skipped", len(report.Batch.Skipped), "archived", report.Archived)
	if report.ArchiveErrors != nil {
		env.logger.Warnw("some files were not archived", "error", report.ArchiveErrors)
	}
	return nil
}

func batchAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	in, out := c.String(flagIn), c.String(flagOut)
	if in == "" {
		in = env.cfg.SourceDir
	}
	if out == "" {
		out = env.cfg.DestDir
	}

	processor, closeDetector, err := buildProcessor(env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer closeDetector()

	if utils.FileExists(in) {
		if err := utils.EnsureDir(out); err != nil {
			return err
		}
		dst := utils.OutputFilename(in, out)
		res, err := processor.ProcessFile(c.Context, in, dst)
		if err != nil {
			return exitError(err)
		}
		env.logger.Infow("wrote result", "path", dst,
			"protected", len(res.Protected), "unprotected", len(res.Unprotected))
		fmt.Fprintln(c.App.Writer, dst)
		return nil
	}

	report, err := processor.ProcessDir(c.Context, in, out)
	if err != nil {
		return exitError(err)
	}
	for _, p := range report.Outputs {
		fmt.Fprintln(c.App.Writer, p)
	}
	env.logger.Infow("batch finished", "processed", len(report.Processed), "skipped", len(report.Skipped),
		"protected", report.Protected, "unprotected", report.Unprotected)
	return nil
}

func probeAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	img, err := processing.NewProcessor().LoadImage(c.String(flagImage))
	if err != nil {
		return err
	}
	det, closeDetector, err := buildDetector(env.cfg.Detector)
	if err != nil {
		return err
	}
	defer closeDetector()

	if p, ok := det.(prober); ok {
		desc, err := p.Probe(c.Context, img)
		if err != nil {
			return exitError(fmt.Errorf("probe failed: %w", err))
		}
		fmt.Fprintf(c.App.Writer, "model says: %s\n", desc)
	}

	dets, err := det.Detect(c.Context, img, env.cfg.Detector.ConfidenceThreshold)
	if err != nil {
		return cli.Exit(fmt.Sprintf("detection failed: %v", err), exitDetection)
	}
	fmt.Fprintf(c.App.Writer, "%d detections\n", len(dets))
	for _, d := range dets {
		fmt.Fprintf(c.App.Writer, "  %-6s %.2f  [%.0f %.0f %.0f %.0f]\n",
			d.Label, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
	}
	return nil
}

func configInitAction(c *cli.Context) error {
	path := c.String(flagConfig)
	if _, err := os.Stat(path); err == nil && !c.Bool(flagForce) {
		return fmt.Errorf("%s already exists, use --%s to overwrite", path, flagForce)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
