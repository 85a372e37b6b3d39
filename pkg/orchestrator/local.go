package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/helmet-inspector/internal/utils"
	"github.com/menta2k/helmet-inspector/pkg/batch"
)

// LocalReport summarizes one local run
type LocalReport struct {
	Batch    *batch.Report
	Archived int
	// ArchiveErrors collects per-file move failures
	ArchiveErrors error
}

// LocalRunner processes SourceDir into DestDir and then moves every processed
// source file into ArchiveDir.
type LocalRunner struct {
	processor  *batch.Processor
	sourceDir  string
	destDir    string
	archiveDir string
	logger     *zap.SugaredLogger
}

// NewLocalRunner creates a local runner
func NewLocalRunner(processor *batch.Processor, sourceDir, destDir, archiveDir string, logger *zap.SugaredLogger) *LocalRunner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LocalRunner{
		processor:  processor,
		sourceDir:  sourceDir,
		destDir:    destDir,
		archiveDir: archiveDir,
		logger:     logger,
	}
}

// Run processes the source directory. Files are archived only when the whole
// batch succeeds; skipped files stay where they are.
func (r *LocalRunner) Run(ctx context.Context) (*LocalReport, error) {
	report := &LocalReport{}
	batchReport, err := r.processor.ProcessDir(ctx, r.sourceDir, r.destDir)
	report.Batch = batchReport
	if err != nil {
		return report, err
	}

	if len(batchReport.Processed) == 0 {
		return report, nil
	}
	if err := utils.EnsureDir(r.archiveDir); err != nil {
		return report, fmt.Errorf("failed to create archive directory: %w", err)
	}

	for _, src := range batchReport.Processed {
		dst := filepath.Join(r.archiveDir, filepath.Base(src))
		if err := utils.MoveFile(src, dst); err != nil {
			r.logger.Warnw("archive failed", "file", src, "error", err)
			report.ArchiveErrors = multierr.Append(report.ArchiveErrors, fmt.Errorf("archive %s: %w", filepath.Base(src), err))
			continue
		}
		report.Archived++
		r.logger.Infow("archived", "file", src, "path", dst)
	}
	return report, nil
}
